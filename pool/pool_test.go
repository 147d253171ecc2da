package pool

import (
	"testing"

	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokens() (weth, dai *token.Token) {
	reg := token.NewRegistry()
	weth = reg.Intern("weth", common.HexToAddress("0x1"), 18)
	dai = reg.Intern("dai", common.HexToAddress("0x2"), 18)
	return
}

func TestNew_RejectsBothSidesWETH(t *testing.T) {
	weth, _ := testTokens()
	_, err := New(common.HexToAddress("0xpool"), UniswapV2, [2]*token.Token{weth, weth}, common.Address{}, weth)
	assert.Error(t, err)
}

func TestNew_RejectsSameTokenBothSides(t *testing.T) {
	_, dai := testTokens()
	weth, _ := testTokens()
	_, err := New(common.HexToAddress("0xpool"), UniswapV2, [2]*token.Token{dai, dai}, common.Address{}, weth)
	assert.Error(t, err)
}

func TestNew_Valid(t *testing.T) {
	weth, dai := testTokens()
	p, err := New(common.HexToAddress("0xpool"), UniswapV2, [2]*token.Token{weth, dai}, common.HexToAddress("0xrouter"), weth)
	require.NoError(t, err)
	assert.True(t, p.ContainsToken(weth))
	assert.True(t, p.ContainsToken(dai))
}

func TestOtherSide(t *testing.T) {
	weth, dai := testTokens()
	p, err := New(common.HexToAddress("0xpool"), UniswapV2, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)

	assert.Same(t, dai, p.OtherSide(weth))
	assert.Same(t, weth, p.OtherSide(dai))
}

func TestOtherSide_PanicsOnForeignToken(t *testing.T) {
	weth, dai := testTokens()
	other := token.NewRegistry().Intern("other", common.HexToAddress("0x3"), 18)
	p, err := New(common.HexToAddress("0xpool"), UniswapV2, [2]*token.Token{weth, dai}, common.Address{}, weth)
	require.NoError(t, err)

	assert.Panics(t, func() {
		p.OtherSide(other)
	})
}

func TestKind_WireCode(t *testing.T) {
	assert.Equal(t, 1, BalancerWeighted.WireCode())
	assert.Equal(t, 2, UniswapV2.WireCode())
	assert.Equal(t, 2, Sushi.WireCode())
	assert.Equal(t, 8, UnknownKind.WireCode())
}

func TestKind_SameRouterFamily(t *testing.T) {
	assert.True(t, UniswapV2.SameRouterFamily(Sushi))
	assert.True(t, Sushi.SameRouterFamily(UniswapV2))
	assert.False(t, UniswapV2.SameRouterFamily(BalancerWeighted))
	assert.False(t, BalancerWeighted.SameRouterFamily(BalancerWeighted))
}
