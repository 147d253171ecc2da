package strategy

import (
	"context"
	"math/big"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/path"
)

// ScanConfig configures the SCAN strategy (spec.md §4.4 table:
// "Every new block" triggers a re-evaluation of "All enumerated paths";
// the pool universe loads once and is never reloaded). SCAN runs the same
// Dispatch pipeline as the other strategies, so a fillable plan that passes
// validation and dry-run is signed and submitted; SCAN is not read-only.
type ScanConfig struct {
	PollInterval      time.Duration // block-wait poll interval, default 500ms
	HeartbeatInterval uint64        // blocks; 0 disables
	WorkerCount       int           // size of the worker pool over path chunks
}

// Scan runs the SCAN strategy loop until ctx is cancelled. universe is
// built once by the caller (BuildPoolUniverse) and never reloaded — SCAN's
// defining trait versus FRESH.
func Scan(ctx context.Context, src BlockSource, universe *PoolUniverse, dispatch *Dispatch, executorBalance func(ctx context.Context) (*big.Int, error), cfg ScanConfig) error {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 500 * time.Millisecond
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 8
	}

	last, err := src.BlockNumber(ctx)
	if err != nil {
		return err
	}

	for {
		heartbeat("scan", last, cfg.HeartbeatInterval)
		dispatch.setPhase(Scanning)

		gasPrice, err := src.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
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

// runPathPool fans paths out across a bounded worker pool — the spec's
// redesign of the original Python strategies' ad-hoc per-path
// threading.Thread spawning (spec.md §9's REDESIGN FLAG) into a cooperative
// worker-pool-over-path-chunks.
func runPathPool(ctx context.Context, paths []*path.ArbitragePath, workers int, fn func(context.Context, *path.ArbitragePath) error) error {
	jobs := make(chan *path.ArbitragePath)
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		go func() {
			for ap := range jobs {
				if err := fn(ctx, ap); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}

	go func() {
		defer close(jobs)
		for _, ap := range paths {
			select {
			case jobs <- ap:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for w := 0; w < workers; w++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
