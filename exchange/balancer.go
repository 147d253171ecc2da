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

// BalancerSimulator implements the BALANCER_WEIGHTED pool kind by calling
// the pool's own calcOutGivenIn view function rather than re-implementing
// the fixed-point weighted-pool exponentiation in Go (spec.md §4.1:
// "correctness over speed"). original_source's services/exchange/balancer.py
// does the same — it never re-derives the formula itself.
type BalancerSimulator struct {
	clients func(address common.Address) (contractclient.ContractClient, error)
}

func (s *BalancerSimulator) StateAt(ctx context.Context, p *pool.Pool, block BlockTag) (State, error) {
	cc, err := s.clients(p.Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: err}
	}

	balIn0, err := cc.CallAtBlock(nil, block.Number, "getBalance", p.Tokens[0].Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getBalance(0): %w", err)}
	}
	balIn1, err := cc.CallAtBlock(nil, block.Number, "getBalance", p.Tokens[1].Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getBalance(1): %w", err)}
	}
	w0, err := cc.CallAtBlock(nil, block.Number, "getDenormalizedWeight", p.Tokens[0].Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getDenormalizedWeight(0): %w", err)}
	}
	w1, err := cc.CallAtBlock(nil, block.Number, "getDenormalizedWeight", p.Tokens[1].Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getDenormalizedWeight(1): %w", err)}
	}
	feeOut, err := cc.CallAtBlock(nil, block.Number, "getSwapFee")
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getSwapFee: %w", err)}
	}

	return balancerPairState{
		token0:   p.Tokens[0],
		token1:   p.Tokens[1],
		balance0: balIn0[0].(*big.Int),
		balance1: balIn1[0].(*big.Int),
		weight0:  w0[0].(*big.Int),
		weight1:  w1[0].(*big.Int),
		fee:      feeOut[0].(*big.Int),
		cc:       cc,
		block:    block,
	}, nil
}

// balancerPairState carries both sides plus the live ContractClient: the
// actual AmountOut call is itself an on-chain view call (calcOutGivenIn),
// so the "state" here is really just "enough to make that call."
type balancerPairState struct {
	token0, token1     *token.Token
	balance0, balance1 *big.Int
	weight0, weight1   *big.Int
	fee                *big.Int
	cc                 contractclient.ContractClient
	block              BlockTag
}

func (balancerPairState) isExchangeState() {}

func (s *BalancerSimulator) AmountOut(state State, tokenIn, tokenOut *token.Token, amountIn *big.Int) (*big.Int, error) {
	st, ok := state.(balancerPairState)
	if !ok {
		return nil, fmt.Errorf("balancer simulator given non-balancer state")
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if tokenIn.Address == tokenOut.Address {
		return nil, fmt.Errorf("tokenIn == tokenOut")
	}

	var balanceIn, weightIn, balanceOut, weightOut *big.Int
	if tokenIn == st.token0 {
		balanceIn, weightIn, balanceOut, weightOut = st.balance0, st.weight0, st.balance1, st.weight1
	} else {
		balanceIn, weightIn, balanceOut, weightOut = st.balance1, st.weight1, st.balance0, st.weight0
	}

	out, err := st.cc.CallAtBlock(nil, st.block.Number, "calcOutGivenIn",
		balanceIn, weightIn, balanceOut, weightOut, amountIn, st.fee)
	if err != nil {
		return nil, fmt.Errorf("calcOutGivenIn: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("calcOutGivenIn returned unexpected type")
	}
	return amountOut, nil
}
