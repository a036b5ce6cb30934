// Package fixedpoint holds the integer fixed-point arithmetic used for
// emissions ratios. All ratios are scaled by 1e18 so results stay exact and
// reproducible; native floats never appear in accounting paths.
package fixedpoint

import "math/big"

// Scale is the fixed-point scale factor (1e18).
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Ratio returns floor(num * Scale / den). den must be non-zero.
func Ratio(num, den *big.Int) *big.Int {
	r := new(big.Int).Mul(num, Scale)
	return r.Quo(r, den)
}

// MulDivCeil returns ceil(x * y / den). den must be positive.
func MulDivCeil(x, y, den *big.Int) *big.Int {
	p := new(big.Int).Mul(x, y)
	q, rem := new(big.Int).QuoRem(p, den, new(big.Int))
	if rem.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// DescaleCeil returns ceil(x / Scale).
func DescaleCeil(x *big.Int) *big.Int {
	return MulDivCeil(x, big.NewInt(1), Scale)
}
