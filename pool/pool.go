// Package pool implements the Pool half of the data model (spec.md §3) and
// the pool registry / loader (C3, spec.md §4.6).
package pool

import (
	"fmt"

	"github.com/ChoSanghyuk/cyclicarb/token"
	"github.com/ethereum/go-ethereum/common"
)

// Kind is the tagged-variant pool-kind sum type spec.md §9's Design Notes
// calls for, replacing the original source's inheritance+factory pattern.
type Kind int

const (
	UnknownKind Kind = iota
	UniswapV2
	Sushi
	BalancerWeighted
)

func (k Kind) String() string {
	switch k {
	case UniswapV2:
		return "UNISWAP_V2"
	case Sushi:
		return "SUSHI"
	case BalancerWeighted:
		return "BALANCER_WEIGHTED"
	default:
		return "UNKNOWN"
	}
}

// WireCode is the §6 on-chain pool_types code for this kind. A run of
// consecutive same-kind Uniswap-family legs is collapsed to one WireCode by
// the caller (printer/encoder.go); this method only answers "what is this
// pool's own code."
func (k Kind) WireCode() int {
	switch k {
	case BalancerWeighted:
		return 1
	case UniswapV2, Sushi:
		return 2
	default:
		return 8 // sentinel "none"
	}
}

// SameRouterFamily reports whether two kinds collapse into the same
// consecutive-run group in the calldata encoder (spec.md §6: "a run of
// consecutive Uniswap-family legs fills one row").
func (k Kind) SameRouterFamily(other Kind) bool {
	isUni := func(x Kind) bool { return x == UniswapV2 || x == Sushi }
	return isUni(k) && isUni(other)
}

// Pool is an immutable swap venue over exactly two tokens.
type Pool struct {
	Address       common.Address
	Kind          Kind
	Tokens        [2]*token.Token
	RouterAddress common.Address // zero for BalancerWeighted, which has none
}

// New constructs a Pool, rejecting the invariant violation spec.md §8's
// boundary cases name explicitly: "Pool whose both tokens are WETH must be
// rejected at load."
func New(address common.Address, kind Kind, tokens [2]*token.Token, router common.Address, weth *token.Token) (*Pool, error) {
	if tokens[0] == weth && tokens[1] == weth {
		return nil, fmt.Errorf("pool %s: both sides are WETH", address.Hex())
	}
	if tokens[0] == tokens[1] {
		return nil, fmt.Errorf("pool %s: both sides are the same token", address.Hex())
	}
	return &Pool{Address: address, Kind: kind, Tokens: tokens, RouterAddress: router}, nil
}

// ContainsToken reports whether t is one of this pool's two sides.
func (p *Pool) ContainsToken(t *token.Token) bool {
	return p.Tokens[0] == t || p.Tokens[1] == t
}

// OtherSide returns the token on the opposite side of in, panicking if in is
// not one of this pool's tokens (a call-site invariant, never user input).
func (p *Pool) OtherSide(in *token.Token) *token.Token {
	switch in {
	case p.Tokens[0]:
		return p.Tokens[1]
	case p.Tokens[1]:
		return p.Tokens[0]
	default:
		panic(fmt.Sprintf("token %s is not in pool %s", in.Address.Hex(), p.Address.Hex()))
	}
}
