// Package fixedpoint provides the integer-only arithmetic the engine uses for
// all valuation math. Amounts are *big.Int at explicit decimal scales; every
// conversion multiplies before dividing and divides with truncation toward
// zero, so value lost to rounding always favors the protocol.
package fixedpoint

import "math/big"

// WadDecimals is the scale of USD values, debt balances and health factors.
const WadDecimals = 18

var (
	// Wad is 10^18, the unit of 18-decimal fixed-point values.
	Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(WadDecimals), nil)

	// MaxUint256 caps health factors for debt-free positions.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Pow10 returns 10^n as a fresh big.Int. n must be non-negative.
func Pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv computes a*b/div without intermediate overflow, truncating toward
// zero. div must be non-zero.
func MulDiv(a, b, div *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, div)
}

// MulDivUp is MulDiv rounding away from zero when there is a remainder.
// The engine itself never uses it for value owed to users; it exists for
// callers that need a conservative upper bound on a required amount.
func MulDivUp(a, b, div *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(num, div, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Percent applies an integer percentage to a, truncating: a*pct/100.
func Percent(a *big.Int, pct int64) *big.Int {
	return MulDiv(a, big.NewInt(pct), big.NewInt(100))
}

// Rescale converts a from one decimal scale to another, truncating when the
// target scale is coarser.
func Rescale(a *big.Int, fromDecimals, toDecimals uint) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(a)
	}
	if toDecimals > fromDecimals {
		return new(big.Int).Mul(a, Pow10(toDecimals-fromDecimals))
	}
	return new(big.Int).Quo(a, Pow10(fromDecimals-toDecimals))
}

// IsPositive reports whether a is non-nil and strictly greater than zero.
func IsPositive(a *big.Int) bool {
	return a != nil && a.Sign() > 0
}

// Clone returns a copy of a, treating nil as zero.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}
