package printer

import (
	"math/big"
	"testing"

	"github.com/ChoSanghyuk/cyclicarb/arbitrage"
	"github.com/ChoSanghyuk/cyclicarb/path"
	"github.com/ChoSanghyuk/cyclicarb/pool"
	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMask = common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

func buildUniswapOnlyPlan(t *testing.T) *arbitrage.Plan {
	t.Helper()
	reg := token.NewRegistry()
	weth := reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai := reg.Intern("dai", common.HexToAddress("0x2"), 18)
	usdc := reg.Intern("usdc", common.HexToAddress("0x3"), 6)

	router := common.HexToAddress("0x99")
	p1, err := pool.New(common.HexToAddress("0x10"), pool.UniswapV2, [2]*token.Token{weth, dai}, router, weth)
	require.NoError(t, err)
	p2, err := pool.New(common.HexToAddress("0x11"), pool.Sushi, [2]*token.Token{dai, usdc}, router, weth)
	require.NoError(t, err)
	p3, err := pool.New(common.HexToAddress("0x12"), pool.UniswapV2, [2]*token.Token{usdc, weth}, router, weth)
	require.NoError(t, err)

	ap := &path.ArbitragePath{Legs: []path.ConnectingPath{
		{Pool: p1, TokenIn: weth, TokenOut: dai},
		{Pool: p2, TokenIn: dai, TokenOut: usdc},
		{Pool: p3, TokenIn: usdc, TokenOut: weth},
	}}
	return &arbitrage.Plan{
		Path:            ap,
		OptimalAmountIn: big.NewInt(1000),
		MinOuts:         []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)},
		GasCostWei:      big.NewInt(5),
		ProfitWei:       big.NewInt(40),
		MaxBlockHeight:  200,
	}
}

func TestEncode_CollapsesSameFamilyRunIntoOneRow(t *testing.T) {
	plan := buildUniswapOnlyPlan(t)
	enc := Encode(plan, testMask)

	assert.Equal(t, pool.UniswapV2.WireCode(), enc.PoolTypes[0])
	assert.Equal(t, UnusedPoolTypeSentinel, enc.PoolTypes[1])
	assert.Equal(t, UnusedPoolTypeSentinel, enc.PoolTypes[2])
	assert.Equal(t, plan.MinOuts[2], enc.MinOutsGrouped[0])
	assert.Equal(t, 0, UnusedMinOutSentinel.Cmp(enc.MinOutsGrouped[1]))
}

func TestEncode_RoundTrip_RecoversMaskedTokenAddresses(t *testing.T) {
	plan := buildUniswapOnlyPlan(t)
	enc := Encode(plan, testMask)
	decoded := Decode(enc, testMask)

	legs := plan.Path.Legs
	// A same-family run records only its entry token (leg 0's TokenIn) and
	// its exit token (the last leg's TokenOut) — intermediate hops are
	// implicit in the router path, not re-listed.
	assert.Equal(t, legs[0].TokenIn.Address, decoded[0][0])
	assert.Equal(t, legs[2].TokenOut.Address, decoded[0][1])
	for i := 2; i < 5; i++ {
		assert.Equal(t, common.Address{}, decoded[0][i])
	}
}

func TestEncode_BalancerLeg_OwnRowRoundTrips(t *testing.T) {
	reg := token.NewRegistry()
	weth := reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai := reg.Intern("dai", common.HexToAddress("0x2"), 18)
	bpool, err := pool.New(common.HexToAddress("0x50"), pool.BalancerWeighted, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)

	ap := &path.ArbitragePath{Legs: []path.ConnectingPath{
		{Pool: bpool, TokenIn: weth, TokenOut: dai},
	}}
	plan := &arbitrage.Plan{
		Path:            ap,
		OptimalAmountIn: big.NewInt(1),
		MinOuts:         []*big.Int{big.NewInt(1)},
		GasCostWei:      big.NewInt(1),
		ProfitWei:       big.NewInt(2),
		MaxBlockHeight:  10,
	}

	enc := Encode(plan, testMask)
	assert.Equal(t, pool.BalancerWeighted.WireCode(), enc.PoolTypes[0])

	decoded := Decode(enc, testMask)
	assert.Equal(t, bpool.Address, decoded[0][0])
	assert.Equal(t, weth.Address, decoded[0][1])
	assert.Equal(t, dai.Address, decoded[0][2])
	for i := 3; i < AddressesPerTokenPath; i++ {
		assert.Equal(t, common.Address{}, decoded[0][i])
	}
}

func TestEncode_UnusedRowsKeepSentinels(t *testing.T) {
	plan := buildUniswapOnlyPlan(t)
	enc := Encode(plan, testMask)

	for r := 1; r < FixedTokenPathSize; r++ {
		assert.Equal(t, UnusedPoolTypeSentinel, enc.PoolTypes[r])
		assert.Equal(t, 0, UnusedMinOutSentinel.Cmp(enc.MinOutsGrouped[r]))
	}
}
