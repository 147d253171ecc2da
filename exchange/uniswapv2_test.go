package exchange

import (
	"context"
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/cyclicarb/pkg/contractclient"
	"github.com/ChoSanghyuk/cyclicarb/pkg/types"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/token"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a hand-built contractclient.ContractClient test seam: it
// answers CallAtBlock by method name regardless of block/args, which is
// enough to exercise the simulators without a live RPC.
type stubClient struct {
	address common.Address
	answers map[string][]interface{}
	err     map[string]error
}

func (s *stubClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return s.CallAtBlock(caller, nil, method, args...)
}

func (s *stubClient) CallAtBlock(caller *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	if err, ok := s.err[method]; ok {
		return nil, err
	}
	return s.answers[method], nil
}

func (s *stubClient) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (s *stubClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	return nil, nil
}
func (s *stubClient) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	return 0, nil
}
func (s *stubClient) SendRaw(ctx context.Context, signed *ethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}
func (s *stubClient) Address() common.Address { return s.address }
func (s *stubClient) ABI() abi.ABI            { return abi.ABI{} }

func testPair(t *testing.T) (weth, dai *token.Token, p *pool.Pool) {
	t.Helper()
	reg := token.NewRegistry()
	weth = reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai = reg.Intern("dai", common.HexToAddress("0x2"), 18)
	var err error
	p, err = pool.New(common.HexToAddress("0x10"), pool.UniswapV2, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)
	return
}

func TestUniswapV2Simulator_StateAndAmountOut(t *testing.T) {
	weth, dai, p := testPair(t)

	stub := &stubClient{
		address: p.Address,
		answers: map[string][]interface{}{
			"token0":       {weth.Address},
			"getReserves": {big.NewInt(1_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000)},
		},
	}
	sim := &UniswapV2Simulator{clients: func(common.Address) (contractclient.ContractClient, error) {
		return stub, nil
	}}

	state, err := sim.StateAt(context.Background(), p, PinnedBlock(big.NewInt(100)))
	require.NoError(t, err)

	out, err := sim.AmountOut(state, weth, dai, big.NewInt(1_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, GetAmountOut(big.NewInt(1_000_000_000_000_000), big.NewInt(1_000_000_000_000_000_000), big.NewInt(2_000_000_000_000_000_000)), out)
}

func TestGetAmountOut_ZeroInput(t *testing.T) {
	out := GetAmountOut(big.NewInt(0), big.NewInt(100), big.NewInt(200))
	assert.Equal(t, big.NewInt(0), out)
}

func TestGetAmountOut_KnownValue(t *testing.T) {
	// amount_in=1000, reserve_in=1_000_000, reserve_out=1_000_000.
	// in_with_fee = 997000; num = 997000*1_000_000; den = 1_000_000*1000+997000.
	out := GetAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000))
	assert.Equal(t, "996", out.String())
}
