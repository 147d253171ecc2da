// Package exchange implements the per-pool-kind reserve-math simulators
// (C2, spec.md §4.1): a pure amount_out function plus a state reader pinned
// to a block height.
package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/cyclicarb/pkg/contractclient"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
)

// BlockTag selects which RPC view the simulator reads at: a pinned height,
// or one of the two CLI-level tags carried from the original bot's
// `--since {latest,pending}` flag (SPEC_FULL.md §5).
//
// The simulators read only Number (nil reads the latest block); Latest and
// Pending are not consulted by either simulator.
type BlockTag struct {
	Number  *big.Int // nil when Latest/Pending is set
	Latest  bool
	Pending bool
}

// PinnedBlock returns a BlockTag pinned to an explicit height — the normal
// case inside one evaluator cycle, where every simulator read must share
// the same snapshot (spec.md §3, §4.3).
func PinnedBlock(number *big.Int) BlockTag { return BlockTag{Number: number} }

// SimulationFailed is spec.md §4.1 / §7's per-pool error: the path that
// triggered it is skipped, the cycle continues.
type SimulationFailed struct {
	Pool   string
	Reason error
}

func (e *SimulationFailed) Error() string {
	return fmt.Sprintf("simulation failed for pool %s: %v", e.Pool, e.Reason)
}
func (e *SimulationFailed) Unwrap() error { return e.Reason }

// State is the minimal reserve/weight snapshot a Simulator needs to compute
// amount_out; its shape depends on the pool kind, so it is carried as an
// opaque value behind the Simulator interface rather than a shared struct.
type State interface {
	isExchangeState()
}

// UniswapV2State is (reserve0, reserve1, token0) pinned at one block.
type UniswapV2State struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Token0   *token.Token
}

func (UniswapV2State) isExchangeState() {}

// BalancerState is the weighted-pool per-side snapshot plus swap fee.
type BalancerState struct {
	BalanceIn  *big.Int
	WeightIn   *big.Int
	BalanceOut *big.Int
	WeightOut  *big.Int
	SwapFee    *big.Int
}

func (BalancerState) isExchangeState() {}

// Simulator is the capability set spec.md §9's tagged-variant redesign
// calls for: read state pinned to a block, compute amount_out from it.
type Simulator interface {
	StateAt(ctx context.Context, p *pool.Pool, block BlockTag) (State, error)
	AmountOut(state State, tokenIn, tokenOut *token.Token, amountIn *big.Int) (*big.Int, error)
}

// Factory resolves the right Simulator for a pool kind (spec.md §9:
// replaces the original inheritance+factory split with a flat lookup since
// Sushi shares Uniswap V2's simulator outright).
type Factory struct {
	uniswap  Simulator
	balancer Simulator
}

// NewFactory wires a Factory from concrete simulators. clients supplies a
// ContractClient per pool address to both simulators, for their on-chain
// state reads.
func NewFactory(clients func(address common.Address) (contractclient.ContractClient, error)) *Factory {
	return &Factory{
		uniswap:  &UniswapV2Simulator{clients: clients},
		balancer: &BalancerSimulator{clients: clients},
	}
}

// For returns the Simulator for a pool's kind. Sushi pools use the exact
// same constant-product simulator as Uniswap V2 (original_source:
// services/exchange/sushiswap.py subclasses uniswap.py, differing only in
// logging) — there is no SushiSimulator type, by design.
func (f *Factory) For(kind pool.Kind) (Simulator, error) {
	switch kind {
	case pool.UniswapV2, pool.Sushi:
		return f.uniswap, nil
	case pool.BalancerWeighted:
		return f.balancer, nil
	default:
		return nil, fmt.Errorf("no simulator for pool kind %s", kind)
	}
}
