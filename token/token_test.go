package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestToWeiFromWei_RoundTrip(t *testing.T) {
	tok := &Token{Address: common.HexToAddress("0x1"), Name: "weth", Decimals: 18}

	wei := tok.ToWei(big.NewFloat(1.5))
	assert.Equal(t, "1500000000000000000", wei.String())

	back := tok.FromWei(wei)
	f, _ := back.Float64()
	assert.InDelta(t, 1.5, f, 1e-9)
}

func TestToWei_Floors(t *testing.T) {
	tok := &Token{Address: common.HexToAddress("0x1"), Name: "usdc", Decimals: 6}
	wei := tok.ToWei(big.NewFloat(1.0000005))
	assert.Equal(t, "1000000", wei.String())
}

func TestIsWETH(t *testing.T) {
	reg := NewRegistry()
	weth := reg.Intern("weth", common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), 18)
	other := reg.Intern("dai", common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), 18)

	assert.True(t, weth.IsWETH(weth))
	assert.False(t, other.IsWETH(weth))
}

func TestRegistry_InternIsIdempotentByAddress(t *testing.T) {
	reg := NewRegistry()
	addr := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	first := reg.Intern("WETH", addr, 18)
	second := reg.Intern("different-name", addr, 9)

	assert.Same(t, first, second)
	assert.Equal(t, "weth", first.Name)
	assert.Equal(t, 18, first.Decimals)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	addr := common.HexToAddress("0x1")
	reg.Intern("tok", addr, 18)

	found, ok := reg.Lookup(addr)
	assert.True(t, ok)
	assert.Equal(t, addr, found.Address)

	_, ok = reg.Lookup(common.HexToAddress("0x2"))
	assert.False(t, ok)
}

func TestRegistry_MustLookupPanicsOnMiss(t *testing.T) {
	reg := NewRegistry()
	assert.Panics(t, func() {
		reg.MustLookup(common.HexToAddress("0xdead"))
	})
}

func TestRegistry_All(t *testing.T) {
	reg := NewRegistry()
	reg.Intern("a", common.HexToAddress("0x1"), 18)
	reg.Intern("b", common.HexToAddress("0x2"), 18)

	assert.Len(t, reg.All(), 2)
}
