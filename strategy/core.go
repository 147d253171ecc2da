// Package strategy implements the four C7 strategy loops (SCAN, FRESH,
// SNIPE, WATCH, spec.md §4.4) that share one trigger→evaluate→dispatch
// skeleton, differing only in trigger source and pool-set lifecycle
// (spec.md §4.6).
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/notify"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/printer"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
)

// Phase is a strategy loop's current execution stage, adapted from the
// liquidity-repositioning strategy's StrategyPhase pattern
// (specs/001-liquidity-repositioning/contracts/strategy_api.go) to the
// cyclic-arbitrage domain's own phases.
type Phase int

const (
	Initializing Phase = iota
	Scanning
	Evaluating
	Dispatching
	Halted
)

func (p Phase) String() string {
	return [...]string{"Initializing", "Scanning", "Evaluating", "Dispatching", "Halted"}[p]
}

// CircuitBreaker halts a strategy loop after too many errors in a rolling
// window, or immediately on a critical error — adapted from
// specs/001-liquidity-repositioning/contracts/strategy_api.go's
// CircuitBreaker, generalised from LP-rebalance errors to RPC/simulation
// errors encountered by a strategy loop.
type CircuitBreaker struct {
	mu                    sync.Mutex
	errorWindow           time.Duration
	errorThreshold        int
	lastErrors            []time.Time
	criticalErrorOccurred bool
}

// NewCircuitBreaker builds a breaker tripping after threshold errors within
// window, or on any critical error.
func NewCircuitBreaker(window time.Duration, threshold int) *CircuitBreaker {
	return &CircuitBreaker{errorWindow: window, errorThreshold: threshold}
}

// RecordError records err and reports whether the loop must halt.
func (cb *CircuitBreaker) RecordError(err error, critical bool) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if critical {
		cb.criticalErrorOccurred = true
		return true
	}
	now := time.Now()
	cutoff := now.Add(-cb.errorWindow)
	kept := cb.lastErrors[:0]
	for _, t := range cb.lastErrors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.lastErrors = append(kept, now)
	return len(cb.lastErrors) >= cb.errorThreshold
}

// Reset clears the breaker's error history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastErrors = nil
	cb.criticalErrorOccurred = false
}

// BlockSource supplies the monotonically increasing block cursor every
// strategy trigger reads (spec.md §5: "the latest-block cursor
// (single-writer = loop)").
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Dispatch is the shared evaluate→validate→dry-run→sign→submit→track
// pipeline every strategy loop runs once a path clears the consecutive
// gate. It is the single place C5 (evaluator) hands off to C6
// (printer/dispatcher) and C9 (notify) per spec.md §4's data-flow diagram.
type Dispatch struct {
	Evaluator  *arbitrage.Evaluator
	Dispatcher *printer.Dispatcher
	Notifier   *notify.Notifier
	Gate       *arbitrage.Gate
	Mask       common.Address
	WETH       common.Address
	EpsilonWei *big.Int // MEV safety margin, must match Evaluator's Config.EpsilonWei
	NonceFunc  func(ctx context.Context) (uint64, error)
	GateOnly   bool // FRESH/WATCH: true; SCAN/SNIPE: false (spec.md §4.3)

	// Breaker halts the owning loop once too many dispatch-pipeline errors
	// accumulate (nil disables this; a PathEnumerationInvariantViolation
	// always halts regardless of Breaker).
	Breaker *CircuitBreaker

	// OnPhase reports the loop's current Phase for liveness observability;
	// nil is a valid no-op.
	OnPhase func(Phase)
}

func (d *Dispatch) setPhase(p Phase) {
	if d.OnPhase != nil {
		d.OnPhase(p)
	}
}

// haltError is returned by Run when the circuit breaker trips, distinct
// from path-level skip outcomes (nil error) and fatal enumeration errors.
type haltError struct{ cause error }

func (e *haltError) Error() string { return fmt.Sprintf("circuit breaker tripped: %v", e.cause) }
func (e *haltError) Unwrap() error { return e.cause }

// recordFailure feeds err to the breaker (if configured) and reports
// whether the caller should halt the loop.
func (d *Dispatch) recordFailure(err error, critical bool) error {
	if d.Breaker == nil {
		return nil
	}
	if d.Breaker.RecordError(err, critical) {
		d.setPhase(Halted)
		return &haltError{cause: err}
	}
	return nil
}

// Run evaluates one path and, if gated-ready, drives it through the full
// dispatch pipeline. It never returns an error for a skipped/unfillable
// path — only for conditions the caller should treat as loop-fatal
// (a PathEnumerationInvariantViolation bubbling from the evaluator).
func (d *Dispatch) Run(ctx context.Context, ap *path.ArbitragePath, block exchange.BlockTag, currentBlock uint64, gasPrice *big.Int, executorBalance *big.Int) error {
	d.setPhase(Evaluating)
	plan, err := d.Evaluator.Evaluate(ctx, ap, block, currentBlock, gasPrice)
	if err != nil {
		var fatal *arbitrage.PathEnumerationInvariantViolation
		if errors.As(err, &fatal) {
			d.setPhase(Halted)
			return err
		}
		// SimulationFailed and similar: skip this path, not the cycle.
		d.Gate.Observe(ap.PathID(), false)
		return nil
	}
	fillable := plan != nil && plan.Fillable(d.EpsilonWei)

	ready := d.Gate.Observe(ap.PathID(), fillable)
	if !d.GateOnly {
		ready = fillable // SCAN/SNIPE dispatch on the first fillable observation
	}
	if !ready || plan == nil {
		return nil
	}

	d.Notifier.ArbitrageOpportunity(formatOpportunity(plan))
	d.setPhase(Dispatching)

	if err := d.Dispatcher.Validate(ctx, plan, executorBalance, d.WETH); err != nil {
		d.Notifier.Errors(err.Error())
		return nil // ValidationFailure: skip plan, not loop-fatal (spec.md §7)
	}
	encoded := printer.Encode(plan, d.Mask)
	calldata, err := d.Dispatcher.BuildCalldata(encoded)
	if err != nil {
		d.Notifier.Errors(fmt.Sprintf("build calldata: %v", err))
		return d.recordFailure(err, false)
	}
	if err := d.Dispatcher.DryRun(ctx, encoded, plan, calldata); err != nil {
		d.Notifier.Errors(err.Error())
		return nil // DryRunRevert: abandon plan, not loop-fatal (spec.md §7)
	}
	nonce, err := d.NonceFunc(ctx)
	if err != nil {
		d.Notifier.Errors(fmt.Sprintf("fetch nonce: %v", err))
		return d.recordFailure(err, false)
	}
	signed, err := d.Dispatcher.Sign(ctx, nonce, gasPrice, calldata)
	if err != nil {
		d.Notifier.Errors(fmt.Sprintf("sign: %v", err))
		return d.recordFailure(err, false)
	}
	hash, err := d.Dispatcher.Submit(ctx, plan, signed)
	if err != nil {
		d.Notifier.Errors(fmt.Sprintf("submit: %v", err))
		return d.recordFailure(err, false)
	}
	d.Notifier.PrintingTx(fmt.Sprintf("%s submitted tx %s", ap.PathID(), hash.Hex()))

	go func() {
		state, trackErr := d.Dispatcher.Track(plan, hash)
		if trackErr != nil {
			d.Notifier.Errors(fmt.Sprintf("%s: %s", state, trackErr))
			return
		}
		d.Notifier.PrintingTx(fmt.Sprintf("%s mined: %s", hash.Hex(), state))
	}()
	return nil
}

func formatOpportunity(plan *arbitrage.Plan) string {
	return fmt.Sprintf("%s %s profit=%s wei amountIn=%s wei", emojiFor(plan.ProfitWei), plan.Path.PathID(), plan.ProfitWei.String(), plan.OptimalAmountIn.String())
}

// emojiFor scales the notification's lead emoji by profit size, matching
// original_source's display_emoji_by_amount thresholds (in WETH):
// 0.5-1.0 -> 2x, 1.0-1.5 -> 5x, 1.5-2.0 -> 10x, >=2.0 -> 20x.
func emojiFor(profitWei *big.Int) string {
	oneWETH := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	half := new(big.Int).Div(oneWETH, big.NewInt(2))
	profit := new(big.Float).SetInt(profitWei)
	weth := new(big.Float).SetInt(oneWETH)
	ratio := new(big.Float).Quo(profit, weth)
	r, _ := ratio.Float64()
	switch {
	case profitWei.Cmp(half) < 0:
		return "💰"
	case r < 1.0:
		return "🍺🍺"
	case r < 1.5:
		return "🍺🍺🍺🍺🍺"
	case r < 2.0:
		return "🍺🍺🍺🍺🍺🍺🍺🍺🍺🍺"
	default:
		return "🍺×20 🎉"
	}
}

// heartbeat logs a liveness line every interval blocks, matching
// original_source's services/strategy/*.py heartbeat(config) calls
// (spec.md §5: supplemented feature, not in the distilled spec).
func heartbeat(name string, block uint64, interval uint64) {
	if interval == 0 || block%interval != 0 {
		return
	}
	log.Printf("💓 %s heartbeat at block %d", name, block)
}

// waitForNextBlock polls src at the given interval until the block number
// advances past last, returning the new block number. This replaces the
// original Python strategies' ad-hoc `threading.Thread` + `time.sleep(1)`
// busy-loop with a single cooperative poll per strategy (spec.md §9's
// REDESIGN FLAG).
func waitForNextBlock(ctx context.Context, src BlockSource, last uint64, pollInterval time.Duration) (uint64, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			n, err := src.BlockNumber(ctx)
			if err != nil {
				return 0, err
			}
			if n > last {
				return n, nil
			}
		}
	}
}

// PoolUniverse bundles the registry outputs a strategy loop needs to
// re-derive on every pool-set reload (spec.md §4.6).
type PoolUniverse struct {
	WETH         *token.Token
	PoolsByToken map[common.Address][]*pool.Pool
	Index        *path.Index
}

// BuildPoolUniverse re-enumerates paths over poolsByToken — the shared step
// SCAN runs once and FRESH/WATCH re-run on every reload.
func BuildPoolUniverse(weth *token.Token, poolsByToken map[common.Address][]*pool.Pool, maxDepth int) (*PoolUniverse, error) {
	idx, err := path.Enumerate(poolsByToken, weth, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("enumerate paths: %w", err)
	}
	return &PoolUniverse{WETH: weth, PoolsByToken: poolsByToken, Index: idx}, nil
}
