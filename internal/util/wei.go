package util

import "math/big"

// Pow10 returns 10^n as a fresh big.Int.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv computes floor(a*b/c) using big.Int arithmetic throughout, never
// rounding until the final division, the same multiply-before-divide
// ordering that on-chain integer math uses.
func MulDiv(a, b, c *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	return num.Div(num, c)
}
