package strategy

import (
	"context"
	"math/big"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/mempool"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ethereum/go-ethereum/common"
)

// SnipeConfig configures the SNIPE strategy (spec.md §4.4 table: triggered
// "Each pending tx of a 'noob' address detected in mempool"; evaluates
// "Paths touching the pools referenced in that pending tx's calldata").
type SnipeConfig struct {
	PollInterval time.Duration // mempool poll interval, default 1s
	Noobs        map[common.Address]struct{}
}

// Snipe runs the SNIPE strategy loop until ctx is cancelled. It never uses
// the consecutive gate (spec.md §4.3: gating is "for FRESH/WATCH strategies
// only") — a sniped opportunity is evaluated and, if fillable, dispatched
// immediately at gas_price+1 to outbid the victim (spec.md §4.4's mempool
// scanner description).
func Snipe(ctx context.Context, scanner *mempool.Scanner, universe *PoolUniverse, dispatch *Dispatch, executorBalance func(ctx context.Context) (*big.Int, error), currentBlock func(ctx context.Context) (uint64, error), cfg SnipeConfig) error {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		candidates, err := scanner.Poll(ctx)
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			if len(cfg.Noobs) > 0 {
				if _, tracked := cfg.Noobs[cand.From]; !tracked {
					continue
				}
			}
			if err := evaluateSnipeCandidate(ctx, cand, universe, dispatch, executorBalance, currentBlock); err != nil {
				return err
			}
		}
	}
}

func evaluateSnipeCandidate(ctx context.Context, cand mempool.Candidate, universe *PoolUniverse, dispatch *Dispatch, executorBalance func(ctx context.Context) (*big.Int, error), currentBlock func(ctx context.Context) (uint64, error)) error {
	touched := make(map[common.Address]struct{}, len(cand.Pools))
	for _, p := range cand.Pools {
		touched[p] = struct{}{}
	}
	var targets []*path.ArbitragePath
	for _, ap := range universe.Index.Paths {
		for addr := range touched {
			if ap.ContainsPool(addr) {
				targets = append(targets, ap)
				break
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}

	block, err := currentBlock(ctx)
	if err != nil {
		return err
	}
	balance, err := executorBalance(ctx)
	if err != nil {
		return err
	}
	gasPrice := new(big.Int).Add(cand.GasPrice, big.NewInt(1)) // outbid the victim within the same block
	tag := exchange.PinnedBlock(new(big.Int).SetUint64(block))

	for _, ap := range targets {
		if err := dispatch.Run(ctx, ap, tag, block, gasPrice, balance); err != nil {
			return err
		}
	}
	return nil
}
