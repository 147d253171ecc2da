// Package printer implements the printer/dispatcher (C6, spec.md §4.4):
// encoding a Plan into the printer contract's packed calldata layout,
// dry-running, signing, submitting, and tracking the resulting transaction.
package printer

import (
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/internal/util"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ethereum/go-ethereum/common"
)

// FixedTokenPathSize is K, the maximum number of path rows / grouped
// min-outs / pool_types entries (spec.md §3: K=3 in this codebase).
const FixedTokenPathSize = 3

// AddressesPerTokenPath is P, the fixed address-slot width of each
// token-path row (spec.md §6).
const AddressesPerTokenPath = 7

// UnusedMinOutSentinel fills unused min_outs_grouped slots (spec.md §6).
var UnusedMinOutSentinel, _ = new(big.Int).SetString("9999999999999000000000000000000", 10)

// UnusedPoolTypeSentinel fills unused pool_types slots (spec.md §6: "NONE").
const UnusedPoolTypeSentinel = 8

// EncodedPlan is the printer contract's packed calldata shape, ready to be
// passed to the `arbitrage(...)` ABI call.
type EncodedPlan struct {
	TokenPaths      [FixedTokenPathSize][AddressesPerTokenPath]common.Address
	MinOutsGrouped  [FixedTokenPathSize]*big.Int
	PoolTypes       [FixedTokenPathSize]int
	AmountIn        *big.Int
	GasBudgetWei    *big.Int
	DeadlineBlock   uint64
}

// Encode serializes a fillable Plan into the printer contract's bit-exact
// wire format (spec.md §4.5, §6): every non-zero pool and token address is
// XORed with mask (a run's router address and leg-count slots are not);
// a run of consecutive Uniswap-family legs collapses into one row;
// a Balancer leg always occupies its own row.
func Encode(plan *arbitrage.Plan, mask common.Address) EncodedPlan {
	var out EncodedPlan
	for i := range out.PoolTypes {
		out.PoolTypes[i] = UnusedPoolTypeSentinel
		out.MinOutsGrouped[i] = new(big.Int).Set(UnusedMinOutSentinel)
	}

	row := 0
	legs := plan.Path.Legs
	var runTokens []common.Address
	var runRouter common.Address

	flushRun := func(upToMinOut *big.Int) {
		if len(runTokens) == 0 {
			return
		}
		n := len(runTokens)
		padded := util.FillZeroAddresses(runTokens, AddressesPerTokenPath-n-2)
		padded = append(padded, runRouter, util.EncodedLegCount(n))
		copy(out.TokenPaths[row][:], padded)
		out.PoolTypes[row] = pool.UniswapV2.WireCode()
		out.MinOutsGrouped[row] = upToMinOut
		row++
		runTokens = nil
	}

	for i, leg := range legs {
		if leg.Pool.Kind == pool.BalancerWeighted {
			flushRun(nil) // runs never straddle a Balancer leg (not same-kind)
			bpoolRow := util.FillZeroAddresses([]common.Address{
				util.MaskAddress(leg.Pool.Address, mask),
				util.MaskAddress(leg.TokenIn.Address, mask),
				util.MaskAddress(leg.TokenOut.Address, mask),
			}, AddressesPerTokenPath-3)
			copy(out.TokenPaths[row][:], bpoolRow)
			out.PoolTypes[row] = pool.BalancerWeighted.WireCode()
			out.MinOutsGrouped[row] = plan.MinOuts[i]
			row++
			continue
		}

		// Uniswap-family leg: accumulate into the current run.
		if len(runTokens) == 0 {
			runTokens = append(runTokens, util.MaskAddress(leg.TokenIn.Address, mask))
			runRouter = leg.Pool.RouterAddress
		}
		isLastOfRun := i == len(legs)-1 || !legs[i+1].Pool.Kind.SameRouterFamily(leg.Pool.Kind)
		if isLastOfRun {
			runTokens = append(runTokens, util.MaskAddress(leg.TokenOut.Address, mask))
			flushRun(plan.MinOuts[i])
		}
	}

	out.AmountIn = plan.OptimalAmountIn
	out.GasBudgetWei = plan.GasCostWei
	out.DeadlineBlock = plan.MaxBlockHeight
	return out
}

// Decode is the encoder's inverse for the address-masking portion only
// (spec.md §8 property #4: "calldata round-trip (encode then XOR-unmask)
// recovers exactly the source addresses"). It does not attempt to recover
// the original per-leg pool/token structure — that is lossy by design (a
// collapsed Uniswap run cannot be split back into its constituent pools)
// — only that every encoded, non-zero address unmasks to its source value.
func Decode(encoded EncodedPlan, mask common.Address) [FixedTokenPathSize][AddressesPerTokenPath]common.Address {
	var out [FixedTokenPathSize][AddressesPerTokenPath]common.Address
	for r := range encoded.TokenPaths {
		for c := range encoded.TokenPaths[r] {
			out[r][c] = util.UnmaskAddress(encoded.TokenPaths[r][c], mask)
		}
	}
	return out
}
