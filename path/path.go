// Package path implements the cyclic-path enumerator (C4, spec.md §4.2):
// a recursive DFS over the token-adjacency multigraph whose edges are
// pools, producing deduplicated WETH-to-WETH cycles of bounded length.
package path

import (
	"fmt"

	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
)

// ConnectingPath is one leg of a cycle: a swap through `Pool` from TokenIn
// to TokenOut. {TokenIn, TokenOut} ⊆ Pool.Tokens (spec.md §3).
type ConnectingPath struct {
	Pool     *pool.Pool
	TokenIn  *token.Token
	TokenOut *token.Token
}

// ArbitragePath is an ordered, immutable list of legs forming a
// WETH→…→WETH cycle (spec.md §3, §9: split out of the mutable dataclass the
// original source uses — evaluation outputs live in arbitrage.Plan instead).
type ArbitragePath struct {
	Legs []ConnectingPath
}

// PathID is the ordered tuple of pool addresses, spec.md §3's definition of
// path identity (explicitly NOT a commutative/sorted hash).
func (p *ArbitragePath) PathID() string {
	id := ""
	for _, leg := range p.Legs {
		id += leg.Pool.Address.Hex()
	}
	return id
}

// ContainsToken reports whether any leg touches the given token — used by
// the WATCH strategy's paths-by-token index consumers.
func (p *ArbitragePath) ContainsToken(t *token.Token) bool {
	for _, leg := range p.Legs {
		if leg.TokenIn == t || leg.TokenOut == t {
			return true
		}
	}
	return false
}

// ContainsPool reports whether any leg uses the given pool — used by the
// SNIPE strategy to select paths touching mempool-referenced pools.
func (p *ArbitragePath) ContainsPool(addr common.Address) bool {
	for _, leg := range p.Legs {
		if leg.Pool.Address == addr {
			return true
		}
	}
	return false
}

// Validate checks the safety assertions spec.md §4.2 requires to hold for
// every returned path. Enumerate never returns a path failing this, but it
// is exported so tests can assert the invariant directly, and so a caller
// reconstructing a path (e.g. from a cache) can re-check it.
func (p *ArbitragePath) Validate(weth *token.Token, maxDepth int) error {
	if len(p.Legs) < 2 || len(p.Legs) > maxDepth {
		return fmt.Errorf("path enumeration invariant violated: length %d out of [2,%d]", len(p.Legs), maxDepth)
	}
	if p.Legs[0].TokenIn != weth {
		return fmt.Errorf("path enumeration invariant violated: first leg does not start in WETH")
	}
	if p.Legs[len(p.Legs)-1].TokenOut != weth {
		return fmt.Errorf("path enumeration invariant violated: last leg does not end in WETH")
	}
	for i := 1; i < len(p.Legs); i++ {
		if p.Legs[i].TokenIn != p.Legs[i-1].TokenOut {
			return fmt.Errorf("path enumeration invariant violated: leg %d does not chain from leg %d", i, i-1)
		}
		if p.Legs[i].Pool.Address == p.Legs[i-1].Pool.Address {
			return fmt.Errorf("path enumeration invariant violated: legs %d and %d reuse the same pool", i-1, i)
		}
	}
	return nil
}

// Index is the enumerator's output: the deduplicated path list plus the
// paths_by_token secondary index spec.md §4.2 requires for WATCH.
type Index struct {
	Paths       []*ArbitragePath
	PathsByToken map[common.Address][]*ArbitragePath
}

// Enumerate runs the recursive DFS described in spec.md §4.2 over poolsByToken
// (every pool incident on a token, keyed by token address) and returns every
// distinct WETH→…→WETH cycle of length in [2, maxDepth].
//
// Paths are built eagerly into a slice rather than streamed lazily: Go's
// lack of generators makes a true lazy sequence awkward, and the registry's
// pool counts in this domain (hundreds, not millions) keep the full
// in-memory result well within the O(N^K) bound spec.md §4.2 calls out.
// Callers that need streaming semantics can range over Index.Paths without
// the enumerator itself blocking — the same effect for this problem size.
func Enumerate(poolsByToken map[common.Address][]*pool.Pool, weth *token.Token, maxDepth int) (*Index, error) {
	if maxDepth < 2 {
		return nil, fmt.Errorf("max depth must be >= 2, got %d", maxDepth)
	}

	seen := make(map[string]struct{})
	idx := &Index{PathsByToken: make(map[common.Address][]*ArbitragePath)}

	for _, p := range poolsByToken[weth.Address] {
		other := p.OtherSide(weth)
		leg1 := ConnectingPath{Pool: p, TokenIn: weth, TokenOut: other}
		suffixes, err := findPaths(other, p, 2, maxDepth, weth, poolsByToken)
		if err != nil {
			return nil, err
		}
		for _, suffix := range suffixes {
			full := append([]ConnectingPath{leg1}, suffix...)
			ap := &ArbitragePath{Legs: full}
			id := ap.PathID()
			if _, dup := seen[id]; dup {
				continue
			}
			if err := ap.Validate(weth, maxDepth); err != nil {
				return nil, err
			}
			seen[id] = struct{}{}
			idx.Paths = append(idx.Paths, ap)
			for _, t := range uniqueTokens(ap) {
				idx.PathsByToken[t.Address] = append(idx.PathsByToken[t.Address], ap)
			}
		}
	}
	return idx, nil
}

// findPaths is the recursion of spec.md §4.2 step 2, ported directly from
// original_source's services/path/path.py `_find_connecting_paths`: at
// depth `step` holding current token `tokenIn` reached via `prevPool`, a
// cycle that has already closed (tokenIn == WETH) contributes one empty
// continuation; otherwise every incident pool but prevPool is tried, each
// pruned once step reaches maxDepth unless it closes the cycle.
func findPaths(tokenIn *token.Token, prevPool *pool.Pool, step, maxDepth int, weth *token.Token, poolsByToken map[common.Address][]*pool.Pool) ([][]ConnectingPath, error) {
	if tokenIn == weth {
		return [][]ConnectingPath{{}}, nil
	}
	if step > maxDepth {
		return nil, nil
	}

	var out [][]ConnectingPath
	for _, p := range poolsByToken[tokenIn.Address] {
		if p.Address == prevPool.Address {
			continue
		}
		tokenOut := p.OtherSide(tokenIn)
		if step == maxDepth && tokenOut != weth {
			continue // would exceed maxDepth without closing the cycle
		}
		subs, err := findPaths(tokenOut, p, step+1, maxDepth, weth, poolsByToken)
		if err != nil {
			return nil, err
		}
		leg := ConnectingPath{Pool: p, TokenIn: tokenIn, TokenOut: tokenOut}
		for _, sub := range subs {
			full := make([]ConnectingPath, 0, len(sub)+1)
			full = append(full, leg)
			full = append(full, sub...)
			out = append(out, full)
		}
	}
	return out, nil
}

func uniqueTokens(p *ArbitragePath) []*token.Token {
	seen := make(map[*token.Token]struct{})
	var out []*token.Token
	for _, leg := range p.Legs {
		for _, t := range [2]*token.Token{leg.TokenIn, leg.TokenOut} {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}
