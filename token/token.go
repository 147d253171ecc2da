// Package token implements the Token half of the data model (spec.md §3):
// immutable, address-interned, fixed-point wei conversions.
package token

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ChoSanghyuk/cyclicarb/internal/util"
	"github.com/ethereum/go-ethereum/common"
)

// Token is an immutable ERC20-shaped token descriptor. Two Tokens with the
// same address are always the same *Token (see Registry), so callers may
// compare by pointer.
type Token struct {
	Address  common.Address
	Name     string
	Decimals int
}

// ToWei converts a human-scale amount into the token's smallest unit:
// floor(x * 10^d).
func (t *Token) ToWei(amount *big.Float) *big.Int {
	scaled := new(big.Float).Mul(amount, new(big.Float).SetInt(util.Pow10(t.Decimals)))
	wei, _ := scaled.Int(nil)
	return wei
}

// FromWei converts a wei amount back to a human-scale float: w / 10^d.
func (t *Token) FromWei(wei *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(wei), new(big.Float).SetInt(util.Pow10(t.Decimals)))
}

// IsWETH reports whether this token is the registry's reference asset.
func (t *Token) IsWETH(weth *Token) bool {
	return t == weth
}

// Registry interns Tokens by lowercased address so every caller observing
// the same on-chain token gets back the identical *Token value.
type Registry struct {
	mu     sync.RWMutex
	byAddr map[common.Address]*Token
}

// NewRegistry returns an empty token registry.
func NewRegistry() *Registry {
	return &Registry{byAddr: make(map[common.Address]*Token)}
}

// Intern registers (name, address, decimals), returning the canonical
// *Token for that address. A second Intern call for the same address
// returns the original Token unchanged (first registration wins), matching
// the data model's "Tokens are immutable, shared by reference" rule.
func (r *Registry) Intern(name string, address common.Address, decimals int) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byAddr[address]; ok {
		return existing
	}
	t := &Token{Address: address, Name: strings.ToLower(name), Decimals: decimals}
	r.byAddr[address] = t
	return t
}

// Lookup returns the interned Token for an address, or (nil, false).
func (r *Registry) Lookup(address common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddr[address]
	return t, ok
}

// MustLookup is Lookup but panics on a miss — reserved for call sites where
// the address is known-good by construction (e.g. decoding our own plan).
func (r *Registry) MustLookup(address common.Address) *Token {
	t, ok := r.Lookup(address)
	if !ok {
		panic(fmt.Sprintf("token %s not interned", address.Hex()))
	}
	return t
}

// All returns every interned token, in no particular order.
func (r *Registry) All() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Token, 0, len(r.byAddr))
	for _, t := range r.byAddr {
		out = append(out, t)
	}
	return out
}
