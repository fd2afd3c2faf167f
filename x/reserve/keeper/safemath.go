package keeper

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// FIXED-POINT ARITHMETIC
// ---------------------------------------------------------------------------
//
// All monetary quantities are sdkmath.Int scaled by 1e18; ratios are basis
// points (10000 BPS = 100%). No floating point appears anywhere in a state
// transition, which keeps results bit-reproducible across nodes.
//
// MulDiv runs the product at big.Int width before dividing, so intermediate
// overflow cannot occur. Sub returns ErrUnderflow instead of going negative;
// Div returns ErrDivisionByZero.
// ---------------------------------------------------------------------------

// SafeMath provides overflow-safe fixed-point arithmetic for engine math.
type SafeMath struct{}

// NewSafeMath creates a new SafeMath instance.
func NewSafeMath() *SafeMath {
	return &SafeMath{}
}

// SafeAdd performs overflow-checked addition.
func (sm *SafeMath) SafeAdd(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sum.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%s + %s: %w", a, b, types.ErrOverflow)
	}
	return sdkmath.NewIntFromBigInt(sum), nil
}

// SafeSub performs subtraction that refuses negative results.
func (sm *SafeMath) SafeSub(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.LT(b) {
		return sdkmath.ZeroInt(), fmt.Errorf("%s - %s: %w", a, b, types.ErrUnderflow)
	}
	return a.Sub(b), nil
}

// SafeMul performs overflow-checked multiplication.
func (sm *SafeMath) SafeMul(a, b sdkmath.Int) (sdkmath.Int, error) {
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if product.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%s * %s: %w", a, b, types.ErrOverflow)
	}
	return sdkmath.NewIntFromBigInt(product), nil
}

// SafeDiv performs division with a zero check.
func (sm *SafeMath) SafeDiv(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%s / 0: %w", a, types.ErrDivisionByZero)
	}
	return a.Quo(b), nil
}

// SafeMulDiv computes (a * b) / c with a big.Int intermediate.
func (sm *SafeMath) SafeMulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("muldiv by zero: %w", types.ErrDivisionByZero)
	}
	intermediate := new(big.Int).Mul(a.BigInt(), b.BigInt())
	result := new(big.Int).Quo(intermediate, c.BigInt())
	if result.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("muldiv(%s, %s, %s): %w", a, b, c, types.ErrOverflow)
	}
	return sdkmath.NewIntFromBigInt(result), nil
}

// SafeBpsMultiply multiplies a value by basis points.
// Example: SafeBpsMultiply(1000, 500) = 1000 * 500 / 10000 = 50.
func (sm *SafeMath) SafeBpsMultiply(value sdkmath.Int, bps int64) (sdkmath.Int, error) {
	return sm.SafeMulDiv(value, sdkmath.NewInt(bps), sdkmath.NewInt(types.BpsBase))
}

// MulWad computes (a * b) / 1e18.
func (sm *SafeMath) MulWad(a, b sdkmath.Int) (sdkmath.Int, error) {
	return sm.SafeMulDiv(a, b, types.WadScale)
}

// DivWad computes (a * 1e18) / b.
func (sm *SafeMath) DivWad(a, b sdkmath.Int) (sdkmath.Int, error) {
	return sm.SafeMulDiv(a, types.WadScale, b)
}

// PowWad raises a 1e18-scaled base to a non-negative integer exponent by
// repeated squaring, reducing back to wad scale after every multiply.
func (sm *SafeMath) PowWad(base sdkmath.Int, exp int64) (sdkmath.Int, error) {
	if exp < 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("negative exponent %d", exp)
	}
	result := types.WadScale
	b := base
	for e := exp; e > 0; e >>= 1 {
		var err error
		if e&1 == 1 {
			result, err = sm.MulWad(result, b)
			if err != nil {
				return sdkmath.ZeroInt(), err
			}
		}
		if e > 1 {
			b, err = sm.MulWad(b, b)
			if err != nil {
				return sdkmath.ZeroInt(), err
			}
		}
	}
	return result, nil
}

// RootWad computes the n-th root of a 1e18-scaled value >= 1e18 by bisection
// over PowWad. Used to convert an annual growth factor to a per-tick factor.
func (sm *SafeMath) RootWad(target sdkmath.Int, n int64) (sdkmath.Int, error) {
	if n <= 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("root order must be positive, got %d", n)
	}
	if target.LT(types.WadScale) {
		return sdkmath.ZeroInt(), fmt.Errorf("root target %s below unity", target)
	}
	if n == 1 || target.Equal(types.WadScale) {
		return target, nil
	}

	lo := types.WadScale
	hi := target
	for i := 0; i < 96; i++ {
		mid := lo.Add(hi).QuoRaw(2)
		if mid.Equal(lo) {
			break
		}
		power, err := sm.PowWad(mid, n)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if power.GT(target) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo, nil
}

// SqrtInt computes the integer square root using Newton's method.
func (sm *SafeMath) SqrtInt(n sdkmath.Int) sdkmath.Int {
	if n.IsZero() || n.IsNegative() {
		return sdkmath.ZeroInt()
	}
	if n.Equal(sdkmath.OneInt()) {
		return sdkmath.OneInt()
	}

	x := n.QuoRaw(2)
	for i := 0; i < 64; i++ {
		xNew := x.Add(n.Quo(x)).QuoRaw(2)
		if xNew.GTE(x) {
			break
		}
		x = xNew
	}
	return x
}
