// Package arbitrage implements the arbitrage evaluator (C5, spec.md §4.3):
// simulate, triage, optimize the input amount, derive min-outs, and apply
// the gas-inclusive profitability predicate.
package arbitrage

import (
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/path"
)

// Plan is an evaluated ArbitragePath: the immutable path plus every
// evaluation output (spec.md §9's Design Notes: split out of the mutated
// dataclass the original source uses into a pure value owned by the Plan).
type Plan struct {
	Path *path.ArbitragePath

	OptimalAmountIn *big.Int   // a*
	AmountsOut      []*big.Int // w_1..w_L at a*
	MinOuts         []*big.Int // m_1..m_L, spec.md §4.3 Step 4

	GasPrice       *big.Int // wei per gas unit, observed
	GasUnits       uint64   // GAS_UNITS, calibrated constant
	GasCostWei     *big.Int // GasPrice * GasUnits
	ProfitWei      *big.Int // w_L(a*) - a*
	MaxBlockHeight uint64   // deadline_block, spec.md §4.3 Step 6
}

// Fillable reports spec.md §4.3 Step 5's profitability predicate:
// profit* > gas_cost + ε, where ε (Epsilon) is the MEV safety margin.
func (p *Plan) Fillable(epsilonWei *big.Int) bool {
	threshold := new(big.Int).Add(p.GasCostWei, epsilonWei)
	return p.ProfitWei.Cmp(threshold) > 0
}

// FinalMinOut is m_L, which by construction equals OptimalAmountIn + GasCostWei.
func (p *Plan) FinalMinOut() *big.Int {
	if len(p.MinOuts) == 0 {
		return nil
	}
	return p.MinOuts[len(p.MinOuts)-1]
}
