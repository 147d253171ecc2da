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

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

// UniswapV2Simulator implements the constant-product-with-fee formula
// shared by UNISWAP_V2 and SUSHI pools (spec.md §4.1). The original
// Python source computes this in floats after converting from wei
// (services/exchange/uniswap.py); this implementation instead stays in
// integer wei throughout with multiply-before-divide ordering, which
// spec.md §4.1 requires for bit-exact agreement with the pool's own
// on-chain getAmountOut.
type UniswapV2Simulator struct {
	clients func(address common.Address) (contractclient.ContractClient, error)
}

func (s *UniswapV2Simulator) StateAt(ctx context.Context, p *pool.Pool, block BlockTag) (State, error) {
	cc, err := s.clients(p.Address)
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: err}
	}

	token0Out, err := cc.CallAtBlock(nil, block.Number, "token0")
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("token0: %w", err)}
	}
	token0Addr, ok := token0Out[0].(common.Address)
	if !ok {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("token0 returned unexpected type")}
	}

	reservesOut, err := cc.CallAtBlock(nil, block.Number, "getReserves")
	if err != nil {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getReserves: %w", err)}
	}
	reserve0, ok0 := reservesOut[0].(*big.Int)
	reserve1, ok1 := reservesOut[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, &SimulationFailed{Pool: p.Address.Hex(), Reason: fmt.Errorf("getReserves returned unexpected types")}
	}

	var token0 *token.Token
	if token0Addr == p.Tokens[0].Address {
		token0 = p.Tokens[0]
	} else {
		token0 = p.Tokens[1]
	}

	return UniswapV2State{Reserve0: reserve0, Reserve1: reserve1, Token0: token0}, nil
}

func (s *UniswapV2Simulator) AmountOut(state State, tokenIn, tokenOut *token.Token, amountIn *big.Int) (*big.Int, error) {
	st, ok := state.(UniswapV2State)
	if !ok {
		return nil, fmt.Errorf("uniswap v2 simulator given non-uniswap state")
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}

	var reserveIn, reserveOut *big.Int
	switch {
	case tokenIn == st.Token0:
		reserveIn, reserveOut = st.Reserve0, st.Reserve1
	default:
		reserveIn, reserveOut = st.Reserve1, st.Reserve0
	}

	return GetAmountOut(amountIn, reserveIn, reserveOut), nil
}

// GetAmountOut computes the Uniswap V2 constant-product output for a given
// input, in pure integer wei arithmetic, multiplying before dividing so the
// result is bit-identical to the pool contract's own getAmountOut:
//
//	in_with_fee = 997 * amount_in
//	amount_out  = (in_with_fee * reserve_out) / (reserve_in * 1000 + in_with_fee)
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn.Sign() == 0 {
		return big.NewInt(0)
	}
	inWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, feeDenominator), inWithFee)
	return numerator.Div(numerator, denominator)
}
