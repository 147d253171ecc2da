// Package configs loads the cyclic-arbitrage bot's configuration: required
// and optional environment variables (spec.md §6), the strategy-tunable
// YAML file (config.yml), and the per-network env table the REDESIGN FLAG
// in spec.md §9 asks for (replacing the original's eval()-based KOVAN_*
// lookup with two resolved tables, mainnet and testnet).
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Network selects which resolved env-var table Config reads from,
// replacing the original bot's `eval(f"KOVAN_{name}")`-style dynamic
// lookup (spec.md §9's REDESIGN FLAG).
type Network int

const (
	Mainnet Network = iota
	Testnet
)

// StrategyYAML carries the tunables config.yml exposes alongside the
// CLI flags spec.md §6 lists (CLI flags override these when set).
type StrategyYAML struct {
	MaxAmountWETH    float64 `yaml:"maxAmountWeth"`
	MinAmountWETH    float64 `yaml:"minAmountWeth"`
	StepWETH         float64 `yaml:"stepWeth"`
	MinLiquidityUSD  int64   `yaml:"minLiquidityUsd"`
	MaxLiquidityUSD  int64   `yaml:"maxLiquidityUsd"`
	GasMultiplier    float64 `yaml:"gasMultiplier"`
	MaxBlockDeadline uint64  `yaml:"maxBlockDeadline"`
	GasUnits         uint64  `yaml:"gasUnits"`       // required, spec.md §9 Open Question: no compiled-in default
	Consecutive      int     `yaml:"consecutive"`    // required, spec.md §9 Open Question: no compiled-in default
	ReloadEveryBlocks uint64 `yaml:"reloadEveryBlocks"`
	TokensPath       string  `yaml:"tokensPath"`
	PoolsPath        string  `yaml:"poolsPath"`
	BlacklistPath    string  `yaml:"blacklistPath"`
	NoobsPath        string  `yaml:"noobsPath"`
}

// YAMLConfig is the top-level shape of config.yml.
type YAMLConfig struct {
	Strategy StrategyYAML `yaml:"strategy"`
}

// LoadYAML reads and parses config.yml into a YAMLConfig.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &cfg, nil
}

// EnvTable is one network's resolved environment variable values
// (spec.md §6's required set, plus the parallel KOVAN_* testnet set).
type EnvTable struct {
	EtherscanAPIKey string
	EthereumWSURI   string
	EthereumHTTPURI string
	ExecutorAddress common.Address
	SignerKeyEnv    string // raw MY_SOCKS value, decrypted by the caller via util.Decrypt
	WETHAddress     common.Address
	PrinterAddress  common.Address

	// ABI file paths (optional, default to abi/ alongside the binary).
	PrinterABIPath      string
	UniswapV2PairABIPath string
	BalancerPoolABIPath  string
}

// Config is the fully-resolved configuration a cmd entry point builds once
// at startup.
type Config struct {
	Network Network
	Env     EnvTable
	Mask    common.Address

	SlackErrorsWebhook                 string
	SlackPrintingTxWebhook             string
	SlackArbitrageOpportunitiesWebhook string
	SlackSnipeWebhook                  string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	AgentPhoneNumbers []string

	Strategy StrategyYAML
}

// Load reads the .env file (if present, via godotenv — matching the
// teacher's test-tooling use of godotenv), resolves the chosen network's
// env table, and merges in config.yml's strategy tunables.
func Load(network Network, yamlPath string) (*Config, error) {
	_ = godotenv.Load() // optional: missing .env is not an error, matches teacher's test setup pattern

	yamlCfg, err := LoadYAML(yamlPath)
	if err != nil {
		return nil, err
	}
	if yamlCfg.Strategy.GasUnits == 0 {
		return nil, fmt.Errorf("config: strategy.gasUnits is required")
	}
	if yamlCfg.Strategy.Consecutive <= 0 {
		return nil, fmt.Errorf("config: strategy.consecutive is required")
	}

	prefix := ""
	if network == Testnet {
		prefix = "KOVAN_"
	}
	get := func(name string) string { return os.Getenv(prefix + name) }
	required := func(name string) (string, error) {
		v := get(name)
		if v == "" {
			return "", fmt.Errorf("missing required env var %s%s", prefix, name)
		}
		return v, nil
	}

	var missing []error
	mustGet := func(name string) string {
		v, err := required(name)
		if err != nil {
			missing = append(missing, err)
		}
		return v
	}

	env := EnvTable{
		EtherscanAPIKey: mustGet("ETHERSCAN_API_KEY"),
		EthereumWSURI:   mustGet("ETHEREUM_WS_URI"),
		EthereumHTTPURI: mustGet("ETHEREUM_HTTP_URI"),
		ExecutorAddress: common.HexToAddress(mustGet("EXECUTOR_ADDRESS")),
		SignerKeyEnv:    mustGet("MY_SOCKS"),
		WETHAddress:     common.HexToAddress(mustGet("WETH_ADDRESS")),
		PrinterAddress:  common.HexToAddress(mustGet("PRINTER_ADDRESS")),

		PrinterABIPath:       withDefault(get("PRINTER_ABI_PATH"), "abi/printer.json"),
		UniswapV2PairABIPath: withDefault(get("UNISWAP_V2_PAIR_ABI_PATH"), "abi/uniswap_v2_pair.json"),
		BalancerPoolABIPath:  withDefault(get("BALANCER_POOL_ABI_PATH"), "abi/balancer_pool.json"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: %d missing required env vars, first: %w", len(missing), missing[0])
	}

	var agentPhones []string
	if raw := os.Getenv("AGENT_PHONE_NUMBERS"); raw != "" {
		agentPhones = strings.Split(raw, ",")
	}

	return &Config{
		Network: network,
		Env:     env,
		Mask:    common.HexToAddress(os.Getenv("MASK_ADDRESS")),

		SlackErrorsWebhook:                 os.Getenv("SLACK_ERRORS_WEBHOOK"),
		SlackPrintingTxWebhook:             os.Getenv("SLACK_PRINTING_TX_WEBHOOK"),
		SlackArbitrageOpportunitiesWebhook: os.Getenv("SLACK_ARBITRAGE_OPPORTUNITIES_WEBHOOK"),
		SlackSnipeWebhook:                  os.Getenv("SLACK_SNIPE_WEBHOOK"),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		AgentPhoneNumbers: agentPhones,

		Strategy: yamlCfg.Strategy,
	}, nil
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ParseCSVAddresses parses the `--only-tokens CSV` CLI flag (spec.md §6)
// into a set of token addresses.
func ParseCSVAddresses(csv string) map[common.Address]struct{} {
	out := make(map[common.Address]struct{})
	if csv == "" {
		return out
	}
	for _, raw := range strings.Split(csv, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		out[common.HexToAddress(raw)] = struct{}{}
	}
	return out
}

// ParseFloatFlag is a small helper for CLI flags that arrive as strings
// from urfave/cli's generic Context lookups.
func ParseFloatFlag(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// ReloadInterval returns the FRESH/WATCH pool-reload period, defaulting to
// 200 blocks (spec.md §4.6) when unset in config.yml.
func (c *Config) ReloadInterval() uint64 {
	if c.Strategy.ReloadEveryBlocks == 0 {
		return 200
	}
	return c.Strategy.ReloadEveryBlocks
}

// DeadlineWindow returns the dispatch deadline window B in blocks,
// defaulting to spec.md §6's `--max-block` default of 3.
func (c *Config) DeadlineWindow() uint64 {
	if c.Strategy.MaxBlockDeadline == 0 {
		return 3
	}
	return c.Strategy.MaxBlockDeadline
}

// GasMultiplier returns the configured gas price multiplier as a ratio,
// defaulting to spec.md §6's `--gas-multiplier` default of 1.5.
func (c *Config) GasMultiplier() float64 {
	if c.Strategy.GasMultiplier == 0 {
		return 1.5
	}
	return c.Strategy.GasMultiplier
}
