package util

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaskAddress XORs addr against the printer contract's fixed 20-byte mask.
// The zero address is left untouched: masking it would otherwise produce a
// non-zero value that the decoder could not distinguish from a real,
// unfilled-by-design slot.
func MaskAddress(addr common.Address, mask common.Address) common.Address {
	if addr == (common.Address{}) {
		return addr
	}
	var out common.Address
	for i := range addr {
		out[i] = addr[i] ^ mask[i]
	}
	return out
}

// UnmaskAddress is its own inverse: XOR is self-inverting.
func UnmaskAddress(masked common.Address, mask common.Address) common.Address {
	return MaskAddress(masked, mask)
}

// FillZeroAddresses pads addrs on the right with n zero addresses, returning
// a fresh slice of len(addrs)+n.
func FillZeroAddresses(addrs []common.Address, n int) []common.Address {
	out := make([]common.Address, 0, len(addrs)+n)
	out = append(out, addrs...)
	for i := 0; i < n; i++ {
		out = append(out, common.Address{})
	}
	return out
}

// EncodedLegCount renders the trailing "0x...000N" sentinel the printer
// contract reads as "this row packs N real address slots."
func EncodedLegCount(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n)))
}
