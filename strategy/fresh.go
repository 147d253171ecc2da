package strategy

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
)

// FreshGasPriceFloorWei is the gas price floor FRESH applies on top of the
// multiplier (spec.md §5: "fresh.py: gas_price = max(gas_price * multiplier,
// 121 gwei)"), expressed in wei.
var FreshGasPriceFloorWei = new(big.Int).Mul(big.NewInt(121), big.NewInt(1_000_000_000))

// FreshConfig configures the FRESH strategy (spec.md §4.4: "pool set
// reloaded every N blocks"; spec.md §4.6's default reload period is 200
// blocks, roughly 40 minutes at 12s blocks).
type FreshConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval uint64
	ReloadEveryBlocks uint64 // N, default 200
	WorkerCount       int
	GasPriceMultiplier *big.Float
}

// ReloadFunc re-reads the pool registry from its YAML/subgraph sources and
// returns the fresh poolsByToken index (spec.md §4.6's reload step).
type ReloadFunc func(ctx context.Context) (map[common.Address][]*pool.Pool, error)

// Fresh runs the FRESH strategy loop until ctx is cancelled. Unlike Scan,
// it re-runs the path enumerator and resets the consecutive gate every
// ReloadEveryBlocks blocks (spec.md §4.6: "After reload the path enumerator
// must re-run and the consecutive-gating map must be reset.").
func Fresh(ctx context.Context, src BlockSource, weth *token.Token, maxDepth int, reload ReloadFunc, dispatch *Dispatch, executorBalance func(ctx context.Context) (*big.Int, error), cfg FreshConfig) error {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}
	reloadEvery := cfg.ReloadEveryBlocks
	if reloadEvery == 0 {
		reloadEvery = 200
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 8
	}

	poolsByToken, err := reload(ctx)
	if err != nil {
		return err
	}
	universe, err := BuildPoolUniverse(weth, poolsByToken, maxDepth)
	if err != nil {
		return err
	}

	last, err := src.BlockNumber(ctx)
	if err != nil {
		return err
	}
	reloadedAt := last

	for {
		heartbeat("fresh", last, cfg.HeartbeatInterval)

		if last-reloadedAt >= reloadEvery {
			poolsByToken, err = reload(ctx)
			if err != nil {
				return err
			}
			universe, err = BuildPoolUniverse(weth, poolsByToken, maxDepth)
			if err != nil {
				return err
			}
			dispatch.Gate.Reset()
			reloadedAt = last
			log.Printf("✓ fresh: pool universe reloaded at block %d (%d paths)", last, len(universe.Index.Paths))
		}

		rawGasPrice, err := src.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		gasPrice := applyFloorAndMultiplier(rawGasPrice, cfg.GasPriceMultiplier, FreshGasPriceFloorWei)

		balance, err := executorBalance(ctx)
		if err != nil {
			return err
		}
		block := exchange.PinnedBlock(new(big.Int).SetUint64(last))

		if err := runPathPool(ctx, universe.Index.Paths, workers, func(ctx context.Context, ap *path.ArbitragePath) error {
			return dispatch.Run(ctx, ap, block, last, gasPrice, balance)
		}); err != nil {
			return err
		}

		next, err := waitForNextBlock(ctx, src, last, pollInterval)
		if err != nil {
			return err
		}
		last = next
	}
}

// applyFloorAndMultiplier scales gasPrice by multiplier (if set) and then
// raises it to floor if the result would be lower.
func applyFloorAndMultiplier(gasPrice *big.Int, multiplier *big.Float, floor *big.Int) *big.Int {
	scaled := gasPrice
	if multiplier != nil {
		f := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), multiplier)
		scaled, _ = f.Int(nil)
	}
	if scaled.Cmp(floor) < 0 {
		return new(big.Int).Set(floor)
	}
	return scaled
}
