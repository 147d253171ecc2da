package strategy

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/exchange"
	"github.com/ChoSanghyuk/cyclicarb/notify"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ChoSanghyuk/cyclicarb/pkg/contractclient"
	"github.com/ChoSanghyuk/cyclicarb/pkg/types"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/printer"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "Initializing", Initializing.String())
	assert.Equal(t, "Halted", Halted.String())
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 3)
	assert.False(t, cb.RecordError(assert.AnError, false))
	assert.False(t, cb.RecordError(assert.AnError, false))
	assert.True(t, cb.RecordError(assert.AnError, false))
}

func TestCircuitBreaker_CriticalTripsImmediately(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 100)
	assert.True(t, cb.RecordError(assert.AnError, true))
}

func TestCircuitBreaker_OldErrorsAgeOutOfWindow(t *testing.T) {
	cb := NewCircuitBreaker(time.Millisecond, 2)
	assert.False(t, cb.RecordError(assert.AnError, false))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, cb.RecordError(assert.AnError, false), "the first error should have aged out of the window")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1)
	assert.True(t, cb.RecordError(assert.AnError, true))
	cb.Reset()
	assert.False(t, cb.RecordError(assert.AnError, false))
}

type fakeBlockSource struct {
	blocks   []uint64
	gasPrice *big.Int
	callErr  error
}

func (f *fakeBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	if f.callErr != nil {
		return 0, f.callErr
	}
	n := f.blocks[0]
	if len(f.blocks) > 1 {
		f.blocks = f.blocks[1:]
	}
	return n, nil
}

func (f *fakeBlockSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func TestWaitForNextBlock_ReturnsOnAdvance(t *testing.T) {
	src := &fakeBlockSource{blocks: []uint64{10, 10, 11}}
	n, err := waitForNextBlock(context.Background(), src, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)
}

func TestWaitForNextBlock_PropagatesBlockSourceError(t *testing.T) {
	src := &fakeBlockSource{callErr: assert.AnError}
	_, err := waitForNextBlock(context.Background(), src, 10, time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForNextBlock_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeBlockSource{blocks: []uint64{10}}
	_, err := waitForNextBlock(ctx, src, 10, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPoolUniverse(t *testing.T) {
	reg := token.NewRegistry()
	weth := reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai := reg.Intern("dai", common.HexToAddress("0x2"), 18)
	p, err := pool.New(common.HexToAddress("0x10"), pool.UniswapV2, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)
	poolsByToken := map[common.Address][]*pool.Pool{weth.Address: {p}, dai.Address: {p}}

	universe, err := BuildPoolUniverse(weth, poolsByToken, 3)
	require.NoError(t, err)
	assert.Same(t, weth, universe.WETH)
	assert.NotNil(t, universe.Index)
}

func TestEmojiFor_ScalesWithProfit(t *testing.T) {
	oneWETH, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, "💰", emojiFor(big.NewInt(1)))
	assert.Equal(t, "🍺×20 🎉", emojiFor(new(big.Int).Mul(oneWETH, big.NewInt(3))))
}

// --- fakes for the Dispatch.Run integration tests below ---

type fakeUniClient struct {
	address  common.Address
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

func (f *fakeUniClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return f.CallAtBlock(caller, nil, method, args...)
}
func (f *fakeUniClient) CallAtBlock(caller *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	switch method {
	case "token0":
		return []interface{}{f.token0}, nil
	case "getReserves":
		return []interface{}{f.reserve0, f.reserve1}, nil
	}
	return nil, nil
}
func (f *fakeUniClient) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeUniClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	return nil, nil
}
func (f *fakeUniClient) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	return 0, nil
}
func (f *fakeUniClient) SendRaw(ctx context.Context, signed *ethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeUniClient) Address() common.Address { return f.address }
func (f *fakeUniClient) ABI() abi.ABI             { return abi.ABI{} }

type fakePrinterClient struct {
	estimateErr error
	sendErr     error
}

func (f *fakePrinterClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (f *fakePrinterClient) CallAtBlock(caller *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (f *fakePrinterClient) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakePrinterClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	return nil, nil
}
func (f *fakePrinterClient) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 21000, nil
}
func (f *fakePrinterClient) SendRaw(ctx context.Context, signed *ethtypes.Transaction) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return signed.Hash(), nil
}
func (f *fakePrinterClient) Address() common.Address { return common.HexToAddress("0xprinter") }

const printerArbitrageABIJSON = `[{"inputs":[{"name":"tokenPaths","type":"address[7][3]"},{"name":"minOuts","type":"uint256[3]"},{"name":"amountIn","type":"uint256"},{"name":"gasBudget","type":"uint256"},{"name":"poolTypes","type":"uint256[3]"},{"name":"deadlineBlock","type":"uint256"}],"name":"arbitrage","outputs":[],"type":"function"}]`

func (f *fakePrinterClient) ABI() abi.ABI {
	parsed, _ := abi.JSON(strings.NewReader(printerArbitrageABIJSON))
	return parsed
}

type fakeTxListener struct{ receipt *ethtypes.Receipt }

func (f *fakeTxListener) WaitForTransaction(hash common.Hash) (*ethtypes.Receipt, error) {
	return f.receipt, nil
}

// weiN returns mantissa * 10^exp as a *big.Int, avoiding error-prone
// underscore-grouped integer literals for large reserve fixtures.
func weiN(mantissa, exp int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(mantissa), new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
}

// buildDispatch wires a full real Evaluator+Dispatcher pair over fake
// on-chain clients, so Dispatch.Run can be exercised end to end without a
// live RPC. The two pools are deliberately cross-priced (p1 values WETH at
// ~4 DAI, p2 lets DAI buy WETH at ~0.5 WETH/DAI) so the round trip clears
// both legs' fees by a wide margin.
func buildDispatch(t *testing.T, threshold int, gateOnly bool) (*Dispatch, *path.ArbitragePath, *token.Token) {
	t.Helper()
	reg := token.NewRegistry()
	weth := reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai := reg.Intern("dai", common.HexToAddress("0x2"), 18)

	p1Addr := common.HexToAddress("0x10")
	p2Addr := common.HexToAddress("0x11")
	p1, err := pool.New(p1Addr, pool.UniswapV2, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)
	p2, err := pool.New(p2Addr, pool.UniswapV2, [2]*token.Token{dai, weth}, common.Address{}, weth)
	require.NoError(t, err)

	clients := map[common.Address]contractclient.ContractClient{
		p1Addr: &fakeUniClient{address: p1Addr, token0: weth.Address, reserve0: weiN(1, 19), reserve1: weiN(4, 19)},
		p2Addr: &fakeUniClient{address: p2Addr, token0: dai.Address, reserve0: weiN(4, 19), reserve1: weiN(2, 19)},
	}
	factory := exchange.NewFactory(func(addr common.Address) (contractclient.ContractClient, error) {
		return clients[addr], nil
	})
	evaluator := arbitrage.NewEvaluator(factory, arbitrage.Config{
		MinAmountWei:   weiN(1, 15),
		MaxAmountWei:   weiN(1, 16),
		StepWei:        weiN(1, 15),
		GasUnits:       100_000,
		EpsilonWei:     big.NewInt(0),
		DeadlineBlocks: 3,
	})

	pk, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	dispatcher := printer.NewDispatcher(&fakePrinterClient{}, &fakeTxListener{receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}}, pk, common.HexToAddress("0xexec"), printer.Config{ChainID: big.NewInt(1), GasLimit: 300000})

	dispatch := &Dispatch{
		Evaluator:  evaluator,
		Dispatcher: dispatcher,
		Notifier:   notify.New(notify.Config{}),
		Gate:       arbitrage.NewGate(threshold),
		Mask:       common.Address{},
		WETH:       weth.Address,
		EpsilonWei: big.NewInt(0),
		NonceFunc:  func(ctx context.Context) (uint64, error) { return 1, nil },
		GateOnly:   gateOnly,
	}

	ap := &path.ArbitragePath{Legs: []path.ConnectingPath{
		{Pool: p1, TokenIn: weth, TokenOut: dai},
		{Pool: p2, TokenIn: dai, TokenOut: weth},
	}}
	return dispatch, ap, weth
}

func TestDispatch_Run_GateOnlyFalse_DispatchesOnFirstFillableObservation(t *testing.T) {
	// threshold=1: the underlying Gate also reaches its own threshold on the
	// first observation, so its counter resets to 0 independent of GateOnly
	// — this isolates "dispatches on first fillable" from gate bookkeeping.
	dispatch, ap, _ := buildDispatch(t, 1, false)

	err := dispatch.Run(context.Background(), ap, exchange.PinnedBlock(big.NewInt(100)), 100, big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, 0, dispatch.Gate.Count(ap.PathID()))
}

func TestDispatch_Run_GateOnlyTrue_RequiresConsecutiveObservations(t *testing.T) {
	dispatch, ap, _ := buildDispatch(t, 3, true)

	require.NoError(t, dispatch.Run(context.Background(), ap, exchange.PinnedBlock(big.NewInt(100)), 100, big.NewInt(1), big.NewInt(0)))
	assert.Equal(t, 1, dispatch.Gate.Count(ap.PathID()))
	require.NoError(t, dispatch.Run(context.Background(), ap, exchange.PinnedBlock(big.NewInt(100)), 100, big.NewInt(1), big.NewInt(0)))
	assert.Equal(t, 2, dispatch.Gate.Count(ap.PathID()))
	require.NoError(t, dispatch.Run(context.Background(), ap, exchange.PinnedBlock(big.NewInt(100)), 100, big.NewInt(1), big.NewInt(0)))
	assert.Equal(t, 0, dispatch.Gate.Count(ap.PathID()), "threshold reached: counter resets on the dispatching step")
}

func TestDispatch_Run_ValidationFailureSkipsWithoutHalting(t *testing.T) {
	dispatch, ap, weth := buildDispatch(t, 1, false)
	_ = weth
	// Force a validation failure by setting an executor balance requirement
	// no fake balance will satisfy.
	pk, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	dispatch.Dispatcher = printer.NewDispatcher(&fakePrinterClient{}, &fakeTxListener{}, pk, common.Address{}, printer.Config{
		ChainID:            big.NewInt(1),
		MinExecutorBalance: big.NewInt(1_000_000_000_000_000_000),
	})

	runErr := dispatch.Run(context.Background(), ap, exchange.PinnedBlock(big.NewInt(100)), 100, big.NewInt(1), big.NewInt(0))
	assert.NoError(t, runErr, "a ValidationFailure must be skip-and-continue, not loop-fatal")
}
