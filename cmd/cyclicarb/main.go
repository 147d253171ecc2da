// Command cyclicarb runs the cyclic-arbitrage bot: one of four strategy
// loops (scan, fresh, snipe, watch) sharing the same evaluate→dispatch
// pipeline over a pool universe loaded from YAML (spec.md §6).
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/configs"
	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/internal/db"
	"github.com/ChoSanghyuk/cyclicarb/internal/util"
	"github.com/ChoSanghyuk/cyclicarb/mempool"
	"github.com/ChoSanghyuk/cyclicarb/notify"
	"github.com/ChoSanghyuk/cyclicarb/pkg/contractclient"
	"github.com/ChoSanghyuk/cyclicarb/pkg/txlistener"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/printer"
	"github.com/ChoSanghyuk/cyclicarb/strategy"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/urfave/cli/v2"
)

// wiring bundles every component a strategy loop needs once config, clients
// and the pool universe have been assembled. It exists so the four Action
// funcs below share one setup path instead of four copies of it.
type wiring struct {
	cfg        *configs.Config
	client     *ethclient.Client
	rpcClient  *rpc.Client
	universe   *strategy.PoolUniverse
	dispatch   *strategy.Dispatch
	poolReg    *pool.Registry
	reload     strategy.ReloadFunc
	maxDepth   int
	noobs      map[common.Address]struct{}
}

func main() {
	app := &cli.App{
		Name:  "cyclicarb",
		Usage: "cyclic arbitrage across Uniswap-family and Balancer pools",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "kovan", Usage: "use the testnet env table (KOVAN_*)"},
			&cli.BoolFlag{Name: "debug", Usage: "accepted but not read; logging is the same with or without it"},
			&cli.BoolFlag{Name: "send-tx", Usage: "accepted but not read; every strategy submits plans that pass validation and dry-run"},
			&cli.Float64Flag{Name: "max-amount", Usage: "override strategy.maxAmountWeth"},
			&cli.Float64Flag{Name: "min-amount", Usage: "override strategy.minAmountWeth"},
			&cli.Int64Flag{Name: "min-liquidity", Usage: "override strategy.minLiquidityUsd"},
			&cli.Int64Flag{Name: "max-liquidity", Usage: "override strategy.maxLiquidityUsd"},
			&cli.Float64Flag{Name: "gas-multiplier", Usage: "override strategy.gasMultiplier"},
			&cli.Uint64Flag{Name: "max-block", Usage: "override strategy.maxBlockDeadline"},
			&cli.StringFlag{Name: "since", Value: "latest", Usage: "latest|pending: accepted but not read; simulations read at the current block number"},
			&cli.StringFlag{Name: "only-tokens", Usage: "CSV of token addresses to restrict the pool universe to"},
			&cli.StringFlag{Name: "config", Value: "configs/config.yml", Usage: "path to config.yml"},
		},
		Commands: []*cli.Command{
			scanCommand(),
			freshCommand(),
			snipeCommand(),
			watchCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cyclicarb:", err)
		os.Exit(1)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "re-evaluate every enumerated path on every new block, no gating",
		Action: func(c *cli.Context) error {
			w, err := setup(c)
			if err != nil {
				return err
			}
			ctx := context.Background()
			executorBalance := balanceFunc(w.client, w.cfg.Env.ExecutorAddress)
			return strategy.Scan(ctx, blockSource{w.client}, w.universe, w.dispatch, executorBalance, strategy.ScanConfig{
				HeartbeatInterval: 50,
			})
		},
	}
}

func freshCommand() *cli.Command {
	return &cli.Command{
		Name:  "fresh",
		Usage: "reload the pool universe every N blocks, gate on C consecutive fillable observations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "consecutive", Usage: "override strategy.consecutive"},
		},
		Action: func(c *cli.Context) error {
			w, err := setup(c)
			if err != nil {
				return err
			}
			if c.IsSet("consecutive") {
				w.dispatch.Gate = arbitrage.NewGate(c.Int("consecutive"))
			}
			ctx := context.Background()
			executorBalance := balanceFunc(w.client, w.cfg.Env.ExecutorAddress)
			return strategy.Fresh(ctx, blockSource{w.client}, w.universe.WETH, w.maxDepth, w.reload, w.dispatch, executorBalance, strategy.FreshConfig{
				HeartbeatInterval: 50,
				ReloadEveryBlocks: w.cfg.ReloadInterval(),
				GasPriceMultiplier: big.NewFloat(w.cfg.GasMultiplier()),
			})
		},
	}
}

func snipeCommand() *cli.Command {
	return &cli.Command{
		Name:  "snipe",
		Usage: "watch the mempool for tracked addresses' pending transactions and outbid them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Usage: "CSV of additional tracked (noob) addresses"},
		},
		Action: func(c *cli.Context) error {
			w, err := setup(c)
			if err != nil {
				return err
			}
			if csv := c.String("address"); csv != "" {
				for addr := range configs.ParseCSVAddresses(csv) {
					w.noobs[addr] = struct{}{}
				}
			}
			ctx := context.Background()
			poolAddrs := make([]common.Address, 0, len(w.poolReg.Pools))
			for _, p := range w.poolReg.Pools {
				poolAddrs = append(poolAddrs, p.Address)
			}
			scanner := mempool.NewScanner(w.rpcClient, poolAddrs)
			executorBalance := balanceFunc(w.client, w.cfg.Env.ExecutorAddress)
			currentBlock := func(ctx context.Context) (uint64, error) { return w.client.BlockNumber(ctx) }
			return strategy.Snipe(ctx, scanner, w.universe, w.dispatch, executorBalance, currentBlock, strategy.SnipeConfig{
				Noobs: w.noobs,
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "re-evaluate only paths touched by a block's Transfer/LOG_SWAP events",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "consecutive", Usage: "override strategy.consecutive"},
		},
		Action: func(c *cli.Context) error {
			w, err := setup(c)
			if err != nil {
				return err
			}
			if c.IsSet("consecutive") {
				w.dispatch.Gate = arbitrage.NewGate(c.Int("consecutive"))
			}
			ctx := context.Background()
			executorBalance := balanceFunc(w.client, w.cfg.Env.ExecutorAddress)
			return strategy.Watch(ctx, blockSource{w.client}, w.client, w.universe.WETH, w.reload, w.maxDepth, w.dispatch, executorBalance, strategy.WatchConfig{
				HeartbeatInterval: 50,
				ReloadEveryBlocks: w.cfg.ReloadInterval(),
			})
		},
	}
}

// blockSource adapts *ethclient.Client to strategy.BlockSource.
type blockSource struct{ client *ethclient.Client }

func (b blockSource) BlockNumber(ctx context.Context) (uint64, error) { return b.client.BlockNumber(ctx) }
func (b blockSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.client.SuggestGasPrice(ctx)
}

func balanceFunc(client *ethclient.Client, executor common.Address) func(ctx context.Context) (*big.Int, error) {
	return func(ctx context.Context) (*big.Int, error) {
		return client.BalanceAt(ctx, executor, nil)
	}
}

// setup loads config, dials the node, decrypts the signer key, builds the
// registries and the shared Dispatch pipeline every strategy command runs.
func setup(c *cli.Context) (*wiring, error) {
	network := configs.Mainnet
	if c.Bool("kovan") {
		network = configs.Testnet
	}
	cfg, err := configs.Load(network, c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(c, cfg)

	encryptedPk := cfg.Env.SignerKeyEnv
	key := os.Getenv("KEY")
	if encryptedPk == "" || key == "" {
		return nil, fmt.Errorf("MY_SOCKS and KEY must both be set")
	}
	pkHex, err := util.Decrypt(key, encryptedPk)
	if err != nil {
		return nil, fmt.Errorf("decrypt signer key: %w", err)
	}
	privateKey, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	cfg.Env.ExecutorAddress = printer.SignerAddress(privateKey)

	client, err := ethclient.Dial(cfg.Env.EthereumHTTPURI)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	rpcClient, err := rpc.Dial(cfg.Env.EthereumHTTPURI)
	if err != nil {
		return nil, fmt.Errorf("dial raw rpc: %w", err)
	}

	tokenReg := token.NewRegistry()
	if err := pool.LoadTokensYAML(cfg.Strategy.TokensPath, tokenReg); err != nil {
		return nil, err
	}
	weth, ok := tokenReg.Lookup(cfg.Env.WETHAddress)
	if !ok {
		return nil, fmt.Errorf("WETH address %s not found in tokens.yaml", cfg.Env.WETHAddress.Hex())
	}
	blacklist, err := pool.LoadBlacklistYAML(cfg.Strategy.BlacklistPath)
	if err != nil {
		return nil, err
	}
	noobsList, err := pool.LoadNoobsYAML(cfg.Strategy.NoobsPath)
	if err != nil {
		return nil, err
	}
	noobs := make(map[common.Address]struct{}, len(noobsList))
	for _, a := range noobsList {
		noobs[a] = struct{}{}
	}

	buildRegistry := func() (*pool.Registry, error) {
		reg := pool.NewRegistry(tokenReg, weth).WithBlacklist(blacklist)
		if csv := c.String("only-tokens"); csv != "" {
			only := configs.ParseCSVAddresses(csv)
			addrs := make([]common.Address, 0, len(only))
			for a := range only {
				addrs = append(addrs, a)
			}
			reg.WithWhitelist(addrs)
		}
		pools, err := pool.LoadPoolsYAML(cfg.Strategy.PoolsPath, tokenReg, weth)
		if err != nil {
			return nil, err
		}
		reg.Add(pools...)
		return reg, nil
	}

	poolReg, err := buildRegistry()
	if err != nil {
		return nil, err
	}

	uniV2ABI, err := util.LoadABI(cfg.Env.UniswapV2PairABIPath)
	if err != nil {
		return nil, fmt.Errorf("load uniswap v2 pair abi: %w", err)
	}
	balancerABI, err := util.LoadABI(cfg.Env.BalancerPoolABIPath)
	if err != nil {
		return nil, fmt.Errorf("load balancer pool abi: %w", err)
	}
	kindByAddress := make(map[common.Address]pool.Kind, len(poolReg.Pools))
	for _, p := range poolReg.Pools {
		kindByAddress[p.Address] = p.Kind
	}
	clientsByABI := func(address common.Address) (contractclient.ContractClient, error) {
		contractABI := uniV2ABI
		if kindByAddress[address] == pool.BalancerWeighted {
			contractABI = balancerABI
		}
		return contractclient.NewContractClient(client, address, contractABI), nil
	}
	factory := exchange.NewFactory(clientsByABI)

	maxDepth := 3
	universe, err := strategy.BuildPoolUniverse(weth, poolReg.PoolsByToken(), maxDepth)
	if err != nil {
		return nil, err
	}

	evaluator := arbitrage.NewEvaluator(factory, arbitrage.Config{
		MinAmountWei:   weth.ToWei(big.NewFloat(cfg.Strategy.MinAmountWETH)),
		MaxAmountWei:   weth.ToWei(big.NewFloat(cfg.Strategy.MaxAmountWETH)),
		StepWei:        weth.ToWei(big.NewFloat(cfg.Strategy.StepWETH)),
		GasUnits:       cfg.Strategy.GasUnits,
		EpsilonWei:     weth.ToWei(big.NewFloat(0.05)),
		DeadlineBlocks: cfg.DeadlineWindow(),
	})

	printerABI, err := util.LoadABI(cfg.Env.PrinterABIPath)
	if err != nil {
		return nil, fmt.Errorf("load printer abi: %w", err)
	}
	printerClient := contractclient.NewContractClient(client, cfg.Env.PrinterAddress, printerABI)
	listener := txlistener.NewTxListener(client,
		txlistener.WithPollInterval(3*time.Second),
		txlistener.WithTimeout(5*time.Minute),
	)
	dispatcher := printer.NewDispatcher(printerClient, listener, privateKey, cfg.Env.ExecutorAddress, printer.Config{
		ChainID:            chainID(network),
		GasLimit:           3_000_000,
		MaskAddress:        cfg.Mask,
		MinExecutorBalance: new(big.Int).Mul(big.NewInt(2), big.NewInt(1_000_000_000_000_000_000)),
	})

	notifier := notify.New(notify.Config{
		SlackErrorsWebhook:                 cfg.SlackErrorsWebhook,
		SlackPrintingTxWebhook:             cfg.SlackPrintingTxWebhook,
		SlackArbitrageOpportunitiesWebhook: cfg.SlackArbitrageOpportunitiesWebhook,
		SlackSnipeWebhook:                  cfg.SlackSnipeWebhook,
		TwilioAccountSID:                   cfg.TwilioAccountSID,
		TwilioAuthToken:                    cfg.TwilioAuthToken,
		TwilioFromNumber:                   cfg.TwilioFromNumber,
		AgentPhoneNumbers:                  cfg.AgentPhoneNumbers,
	})

	recorder, err := db.NewMySQLRecorder(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		envOr("MYSQL_USER", "root"), envOr("MYSQL_PASSWORD", ""), envOr("MYSQL_HOST", "127.0.0.1"), envOr("MYSQL_PORT", "3306"), envOr("MYSQL_DB", "cyclicarb")))
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	dispatch := &strategy.Dispatch{
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Gate:       arbitrage.NewGate(cfg.Strategy.Consecutive),
		Mask:       cfg.Mask,
		WETH:       weth.Address,
		EpsilonWei: weth.ToWei(big.NewFloat(0.05)),
		NonceFunc: func(ctx context.Context) (uint64, error) {
			return client.PendingNonceAt(ctx, cfg.Env.ExecutorAddress)
		},
		GateOnly: c.Command.Name == "fresh" || c.Command.Name == "watch",
		Breaker:  strategy.NewCircuitBreaker(time.Minute, 10),
	}
	dispatcher.OnTransition = func(plan *arbitrage.Plan, state printer.State, detail string) {
		switch state {
		case printer.Mined:
			_ = recorder.RecordDispatch(plan.Path.PathID(), detail, plan.OptimalAmountIn, plan.ProfitWei, plan.GasCostWei, plan.GasPrice, state.String())
		case printer.Reverted, printer.TimedOut:
			notifier.Errors(fmt.Sprintf("%s: %s", plan.Path.PathID(), state))
		}
	}

	reload := func(ctx context.Context) (map[common.Address][]*pool.Pool, error) {
		reg, err := buildRegistry()
		if err != nil {
			return nil, err
		}
		poolReg = reg
		return reg.PoolsByToken(), nil
	}

	return &wiring{
		cfg:      cfg,
		client:   client,
		rpcClient: rpcClient,
		universe: universe,
		dispatch: dispatch,
		poolReg:  poolReg,
		reload:   reload,
		maxDepth: maxDepth,
		noobs:    noobs,
	}, nil
}

func applyFlagOverrides(c *cli.Context, cfg *configs.Config) {
	if c.IsSet("max-amount") {
		cfg.Strategy.MaxAmountWETH = c.Float64("max-amount")
	}
	if c.IsSet("min-amount") {
		cfg.Strategy.MinAmountWETH = c.Float64("min-amount")
	}
	if c.IsSet("min-liquidity") {
		cfg.Strategy.MinLiquidityUSD = c.Int64("min-liquidity")
	}
	if c.IsSet("max-liquidity") {
		cfg.Strategy.MaxLiquidityUSD = c.Int64("max-liquidity")
	}
	if c.IsSet("gas-multiplier") {
		cfg.Strategy.GasMultiplier = c.Float64("gas-multiplier")
	}
	if c.IsSet("max-block") {
		cfg.Strategy.MaxBlockDeadline = c.Uint64("max-block")
	}
}

func chainID(network configs.Network) *big.Int {
	if network == configs.Testnet {
		return big.NewInt(42) // Kovan
	}
	return big.NewInt(1)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
