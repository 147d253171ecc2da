package pool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Predicate is a pluggable safety hook over a loaded Pool, the "operator
// heuristic" spec.md §9's Open Questions singles out as non-core (e.g. "pool
// contains the PAMP token"). Returning false excludes the pool.
type Predicate func(*Pool) bool

// TokensYAML mirrors tokens.yaml (spec.md §6): `tokens: [{name, address, decimal}]`.
type TokensYAML struct {
	Tokens []struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		Decimal int    `yaml:"decimal"`
	} `yaml:"tokens"`
}

// PoolsYAML mirrors pools.yaml: `pools: [{name, type, address, tokens: [names...]}]`.
type PoolsYAML struct {
	Pools []struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Address string   `yaml:"address"`
		Router  string   `yaml:"router,omitempty"`
		Tokens  []string `yaml:"tokens"`
	} `yaml:"pools"`
}

// NoobsYAML mirrors snipers.yaml: `noobs: [{address}]`.
type NoobsYAML struct {
	Noobs []struct {
		Address string `yaml:"address"`
	} `yaml:"noobs"`
}

func parseKind(s string) Kind {
	switch strings.ToUpper(s) {
	case "BPOOL", "BALANCER", "BALANCER_WEIGHTED":
		return BalancerWeighted
	case "SUSHISWAP", "SUSHI":
		return Sushi
	case "UNISWAP", "UNISWAP_V2":
		return UniswapV2
	default:
		return UnknownKind
	}
}

// LoadTokensYAML reads a tokens.yaml-shaped file and interns every entry.
func LoadTokensYAML(path string, reg *token.Registry) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tokens yaml %s: %w", path, err)
	}
	var doc TokensYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse tokens yaml %s: %w", path, err)
	}
	for _, e := range doc.Tokens {
		reg.Intern(e.Name, common.HexToAddress(e.Address), e.Decimal)
	}
	return nil
}

// LoadBlacklistYAML reads blacklist.yaml (same shape as tokens.yaml) and
// returns the set of blacklisted token addresses.
func LoadBlacklistYAML(path string) (map[common.Address]struct{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blacklist yaml %s: %w", path, err)
	}
	var doc TokensYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse blacklist yaml %s: %w", path, err)
	}
	out := make(map[common.Address]struct{}, len(doc.Tokens))
	for _, e := range doc.Tokens {
		out[common.HexToAddress(e.Address)] = struct{}{}
	}
	return out, nil
}

// LoadNoobsYAML reads snipers.yaml and returns the tracked competitor addresses.
func LoadNoobsYAML(path string) ([]common.Address, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read noobs yaml %s: %w", path, err)
	}
	var doc NoobsYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse noobs yaml %s: %w", path, err)
	}
	out := make([]common.Address, 0, len(doc.Noobs))
	for _, n := range doc.Noobs {
		out = append(out, common.HexToAddress(n.Address))
	}
	return out, nil
}

// LoadPoolsYAML reads a pools.yaml-shaped file. Every token name referenced
// must already be interned in reg (normally via LoadTokensYAML first).
func LoadPoolsYAML(path string, reg *token.Registry, weth *token.Token) ([]*Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools yaml %s: %w", path, err)
	}
	var doc PoolsYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse pools yaml %s: %w", path, err)
	}
	out := make([]*Pool, 0, len(doc.Pools))
	for _, e := range doc.Pools {
		if len(e.Tokens) != 2 {
			return nil, fmt.Errorf("pool %s: expected exactly 2 tokens, got %d", e.Name, len(e.Tokens))
		}
		var sides [2]*token.Token
		for i, name := range e.Tokens {
			t, ok := findByName(reg, name)
			if !ok {
				return nil, fmt.Errorf("pool %s: token %q not found in token registry", e.Name, name)
			}
			sides[i] = t
		}
		p, err := New(common.HexToAddress(e.Address), parseKind(e.Type), sides, common.HexToAddress(e.Router), weth)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", e.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func findByName(reg *token.Registry, name string) (*token.Token, bool) {
	for _, t := range reg.All() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// SubgraphConfig holds the two GraphQL endpoints the registry queries for a
// live pool universe (grounded on original_source's services/pools/loader.py).
type SubgraphConfig struct {
	UniswapV2URL string
	BalancerURL  string
	HTTPTimeout  time.Duration
}

// LiquidityBand filters subgraph results by USD-denominated reserve size
// (spec.md §4.6: "liquidity band filters").
type LiquidityBand struct {
	MinLiquidityUSD int64
	MaxLiquidityUSD int64
}

type subgraphRequest struct {
	Query string `json:"query"`
}

type uniswapV2Pair struct {
	ID     string `json:"id"`
	Token0 struct {
		Symbol   string `json:"symbol"`
		ID       string `json:"id"`
		Decimals string `json:"decimals"`
	} `json:"token0"`
	Token1 struct {
		Symbol   string `json:"symbol"`
		ID       string `json:"id"`
		Decimals string `json:"decimals"`
	} `json:"token1"`
}

type uniswapV2Response struct {
	Data struct {
		Pairs []uniswapV2Pair `json:"pairs"`
	} `json:"data"`
}

// FetchUniswapV2Pairs queries the Uniswap V2 subgraph for pairs inside the
// given liquidity band, ordered by volume, capped at `first` results —
// mirrors loader.py's GraphQL query shape (reserveUSD_gt, orderBy volumeUSD).
func (c *SubgraphConfig) FetchUniswapV2Pairs(band LiquidityBand, first int) ([]uniswapV2Pair, error) {
	query := fmt.Sprintf(`{
		pairs(first: %d, orderBy: volumeUSD, orderDirection: desc,
			where: { reserveUSD_gt: %d, reserveUSD_lt: %d }) {
			id
			token0 { id symbol decimals }
			token1 { id symbol decimals }
		}
	}`, first, band.MinLiquidityUSD, band.MaxLiquidityUSD)

	var resp uniswapV2Response
	if err := c.post(c.UniswapV2URL, query, &resp); err != nil {
		return nil, fmt.Errorf("fetch uniswap v2 pairs: %w", err)
	}
	return resp.Data.Pairs, nil
}

type balancerPool struct {
	ID     string `json:"id"`
	Tokens []struct {
		Address string `json:"address"`
	} `json:"tokens"`
}

type balancerResponse struct {
	Data struct {
		Pools []balancerPool `json:"pools"`
	} `json:"data"`
}

// FetchBalancerPools queries the Balancer subgraph for two-token public
// swap pools inside the liquidity band (loader.py: publicSwap:true, tokensCount:2).
func (c *SubgraphConfig) FetchBalancerPools(band LiquidityBand, first int) ([]balancerPool, error) {
	query := fmt.Sprintf(`{
		pools(first: %d, where: { publicSwap: true, tokensCount: 2, liquidity_gt: %d, liquidity_lt: %d }) {
			id
			tokens { address }
		}
	}`, first, band.MinLiquidityUSD, band.MaxLiquidityUSD)

	var resp balancerResponse
	if err := c.post(c.BalancerURL, query, &resp); err != nil {
		return nil, fmt.Errorf("fetch balancer pools: %w", err)
	}
	return resp.Data.Pools, nil
}

func (c *SubgraphConfig) post(url, query string, out interface{}) error {
	body, err := json.Marshal(subgraphRequest{Query: query})
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: c.HTTPTimeout}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 10 * time.Second
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("subgraph %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Registry is the loaded, filtered pool universe for one refresh cycle.
// Filled by Add while a refresh cycle builds it and not modified afterwards
// (spec.md §5: "Immutable after load: token set, pool set, path list").
type Registry struct {
	Tokens     *token.Registry
	WETH       *token.Token
	Pools      []*Pool
	blacklist  map[common.Address]struct{}
	whitelist  map[common.Address]struct{} // nil = no whitelist filter
	predicates []Predicate
}

// NewRegistry builds an empty Registry rooted at the given token registry
// and reference (WETH) token.
func NewRegistry(tokens *token.Registry, weth *token.Token) *Registry {
	return &Registry{Tokens: tokens, WETH: weth}
}

// WithBlacklist installs the token blacklist: any pool containing a
// blacklisted token is excluded (spec.md §4.6).
func (r *Registry) WithBlacklist(blacklist map[common.Address]struct{}) *Registry {
	r.blacklist = blacklist
	return r
}

// WithWhitelist installs an only-tokens whitelist; nil disables the filter.
func (r *Registry) WithWhitelist(onlyTokens []common.Address) *Registry {
	if onlyTokens == nil {
		r.whitelist = nil
		return r
	}
	r.whitelist = make(map[common.Address]struct{}, len(onlyTokens))
	for _, a := range onlyTokens {
		r.whitelist[a] = struct{}{}
	}
	return r
}

// WithPredicate appends an operator-heuristic safety predicate (spec.md §9
// Open Questions: pluggable, not a core invariant).
func (r *Registry) WithPredicate(p Predicate) *Registry {
	r.predicates = append(r.predicates, p)
	return r
}

// Add filters and, if it passes, appends pools to the registry.
func (r *Registry) Add(pools ...*Pool) {
	for _, p := range pools {
		if r.excluded(p) {
			continue
		}
		r.Pools = append(r.Pools, p)
	}
}

func (r *Registry) excluded(p *Pool) bool {
	for _, t := range p.Tokens {
		if _, blacklisted := r.blacklist[t.Address]; blacklisted {
			return true
		}
	}
	if r.whitelist != nil {
		anyWhitelisted := false
		for _, t := range p.Tokens {
			if _, ok := r.whitelist[t.Address]; ok {
				anyWhitelisted = true
			}
		}
		if !anyWhitelisted {
			return true
		}
	}
	for _, pred := range r.predicates {
		if !pred(p) {
			return true
		}
	}
	return false
}

// PoolsByToken indexes the registry's pools by the tokens they touch.
func (r *Registry) PoolsByToken() map[common.Address][]*Pool {
	out := make(map[common.Address][]*Pool)
	for _, p := range r.Pools {
		for _, t := range p.Tokens {
			out[t.Address] = append(out[t.Address], p)
		}
	}
	return out
}
