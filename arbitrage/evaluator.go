package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/path"
)

// Config carries the per-deployment constants spec.md §9's Open Questions
// require to be explicit, not hardcoded: GasUnits (ESTIMATE_GAS_EXECUTION),
// the optimisation step Δ, the min/max probe amounts, the MEV safety margin
// ε, and the deadline window B.
type Config struct {
	MinAmountWei   *big.Int // probe amount a0
	MaxAmountWei   *big.Int
	StepWei        *big.Int // Δ, e.g. 0.1 WETH
	GasUnits       uint64   // GAS_UNITS, e.g. 500_000
	EpsilonWei     *big.Int // ε, e.g. 0.05 WETH
	DeadlineBlocks uint64   // B, network-dependent (2, 3, or 15)
}

// Evaluator is the C5 core: given a path, a pinned block, and current gas
// price, produces a Plan or an error explaining why the path was skipped.
type Evaluator struct {
	factory *exchange.Factory
	config  Config
}

// NewEvaluator builds an Evaluator. factory resolves the right Simulator
// per pool kind; config carries the calibrated constants above.
func NewEvaluator(factory *exchange.Factory, config Config) *Evaluator {
	return &Evaluator{factory: factory, config: config}
}

// simulateLeg resolves, reads, and runs one leg's simulator at the pinned
// block, returning a SimulationFailed-wrapped error on any failure (spec.md
// §4.1: "any RPC failure ... causes the path to be skipped, not the cycle
// to abort").
func (e *Evaluator) simulateLeg(ctx context.Context, leg path.ConnectingPath, block exchange.BlockTag, amountIn *big.Int) (*big.Int, error) {
	sim, err := e.factory.For(leg.Pool.Kind)
	if err != nil {
		return nil, &exchange.SimulationFailed{Pool: leg.Pool.Address.Hex(), Reason: err}
	}
	state, err := sim.StateAt(ctx, leg.Pool, block)
	if err != nil {
		return nil, err // already a *SimulationFailed
	}
	out, err := sim.AmountOut(state, leg.TokenIn, leg.TokenOut, amountIn)
	if err != nil {
		return nil, &exchange.SimulationFailed{Pool: leg.Pool.Address.Hex(), Reason: err}
	}
	return out, nil
}

// simulatePath runs every leg of ap in order with input amountIn, returning
// the full per-leg output vector w_1..w_L (spec.md §4.3 Step 1).
func (e *Evaluator) simulatePath(ctx context.Context, ap *path.ArbitragePath, block exchange.BlockTag, amountIn *big.Int) ([]*big.Int, error) {
	outs := make([]*big.Int, len(ap.Legs))
	cur := amountIn
	for i, leg := range ap.Legs {
		out, err := e.simulateLeg(ctx, leg, block, cur)
		if err != nil {
			return nil, err
		}
		outs[i] = out
		cur = out
	}
	return outs, nil
}

// Evaluate runs the full spec.md §4.3 pipeline for one path at one pinned
// block and gas price. It returns (nil, nil) when the probe amount shows no
// slack (Step 2) — that is a normal outcome, not an error; a non-nil error
// means the path had to be abandoned (simulation failure). A returned Plan
// is not filtered by the Step 5 profitability predicate here: callers
// apply it via Plan.Fillable.
func (e *Evaluator) Evaluate(ctx context.Context, ap *path.ArbitragePath, block exchange.BlockTag, currentBlock uint64, gasPrice *big.Int) (*Plan, error) {
	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(e.config.GasUnits))

	// Step 1 — simulate at the probe amount.
	probeOuts, err := e.simulatePath(ctx, ap, block, e.config.MinAmountWei)
	if err != nil {
		return nil, err
	}
	finalOut := probeOuts[len(probeOuts)-1]

	// Step 2 — triage: if there's no slack at all even before considering
	// gas, there is nothing to optimise toward.
	slack := new(big.Int).Sub(finalOut, e.config.MinAmountWei)
	if slack.Sign() <= 0 {
		return nil, nil
	}

	// Step 3 — monotonic-ascent local optimisation.
	bestAmount := new(big.Int).Set(e.config.MinAmountWei)
	bestOuts := probeOuts
	bestProfit := new(big.Int).Sub(finalOut, e.config.MinAmountWei)

	for a := new(big.Int).Add(e.config.MinAmountWei, e.config.StepWei); a.Cmp(e.config.MaxAmountWei) <= 0; a.Add(a, e.config.StepWei) {
		outs, err := e.simulatePath(ctx, ap, block, a)
		if err != nil {
			return nil, err
		}
		profit := new(big.Int).Sub(outs[len(outs)-1], a)
		if profit.Cmp(bestProfit) < 0 {
			// Break as soon as profit stops improving: the cost curve is
			// assumed unimodal in `a` (constant-product / weighted pools).
			// This early break is a latency-critical property spec.md
			// §4.3 Step 3 requires preserving, not an incidental optimisation.
			break
		}
		bestProfit = profit
		bestAmount = new(big.Int).Set(a)
		bestOuts = outs
	}

	// Step 4 — min-out derivation (proportional scaling), spec.md §9's
	// canonical form: m_L = a* + gas_cost, m_i = floor(w_i * m_L / w_L).
	finalMinOut := new(big.Int).Add(bestAmount, gasCost)
	bestFinalOut := bestOuts[len(bestOuts)-1]
	minOuts := make([]*big.Int, len(bestOuts))
	for i, w := range bestOuts {
		if bestFinalOut.Sign() == 0 {
			minOuts[i] = big.NewInt(0)
			continue
		}
		num := new(big.Int).Mul(w, finalMinOut)
		minOuts[i] = num.Div(num, bestFinalOut)
	}

	plan := &Plan{
		Path:            ap,
		OptimalAmountIn: bestAmount,
		AmountsOut:      bestOuts,
		MinOuts:         minOuts,
		GasPrice:        gasPrice,
		GasUnits:        e.config.GasUnits,
		GasCostWei:      gasCost,
		ProfitWei:       bestProfit,
		MaxBlockHeight:  currentBlock + e.config.DeadlineBlocks,
	}
	return plan, nil
}

// PathEnumerationInvariantViolation is spec.md §7's fatal error class: it
// aborts the current cycle and triggers a process restart, unlike every
// other error in this package which is skip-and-continue.
type PathEnumerationInvariantViolation struct {
	Reason error
}

func (e *PathEnumerationInvariantViolation) Error() string {
	return fmt.Sprintf("path enumeration invariant violated: %v", e.Reason)
}
func (e *PathEnumerationInvariantViolation) Unwrap() error { return e.Reason }
