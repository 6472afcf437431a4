package cpuinstr

import (
	"math"
	"strconv"
)

// Count is a number of retired CPU instructions.
//
// Count has the same representation as int64 and all of its arithmetic is
// Go's fixed-width signed integer arithmetic: results wrap around on overflow
// (two's complement) and never panic. The only panicking operations are Div
// and Rem with a zero divisor, which fail exactly like native int64 division.
// The compound assignment operators (+=, -=, *=, /=, %=) work on Count values
// directly and follow the same rules.
type Count int64

const (
	// Zero is the additive identity.
	Zero Count = 0
	// MaxCount is the largest representable Count.
	MaxCount Count = math.MaxInt64
)

// Raw returns c as a plain int64.
func (c Count) Raw() int64 { return int64(c) }

// Add returns c + o, wrapping on overflow.
func (c Count) Add(o Count) Count { return c + o }

// Sub returns c - o, wrapping on overflow.
func (c Count) Sub(o Count) Count { return c - o }

// Mul returns c * o, wrapping on overflow.
func (c Count) Mul(o Count) Count { return c * o }

// Div returns c / o truncated toward zero. Dividing the minimum value by -1
// wraps back to the minimum value. Div panics if o is zero.
func (c Count) Div(o Count) Count { return c / o }

// Rem returns c % o with the sign of c. Rem panics if o is zero.
func (c Count) Rem(o Count) Count { return c % o }

// Neg returns -c. The minimum value negates to itself.
func (c Count) Neg() Count { return -c }

// Cmp returns -1, 0 or +1 depending on whether c is less than, equal to or
// greater than o.
func (c Count) Cmp(o Count) int {
	switch {
	case c < o:
		return -1
	case c > o:
		return 1
	default:
		return 0
	}
}

// MulFloat64 scales c by f in float64 and truncates the result toward zero.
func (c Count) MulFloat64(f float64) Count { return fromFloat64(float64(c) * f) }

// DivFloat64 divides c by f in float64 and truncates the result toward zero.
func (c Count) DivFloat64(f float64) Count { return fromFloat64(float64(c) / f) }

// MulFloat32 scales c by f in float32 precision and truncates the result toward zero.
func (c Count) MulFloat32(f float32) Count { return fromFloat64(float64(float32(c) * f)) }

// DivFloat32 divides c by f in float32 precision and truncates the result toward zero.
func (c Count) DivFloat32(f float32) Count { return fromFloat64(float64(float32(c) / f)) }

// String renders c in decimal.
func (c Count) String() string { return strconv.FormatInt(int64(c), 10) }

// Sum adds up values, wrapping on overflow. The sum of no values is Zero.
func Sum(values ...Count) Count {
	total := Zero
	for _, v := range values {
		total += v
	}
	return total
}

// fromFloat64 narrows f to a Count, saturating at the int64 bounds. NaN maps to Zero.
// Go leaves out-of-range float to int conversions implementation-defined, so
// the bounds are handled here.
func fromFloat64(f float64) Count {
	switch {
	case math.IsNaN(f):
		return Zero
	case f >= math.MaxInt64: // float64(MaxInt64) rounds up to 2^63
		return MaxCount
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return Count(f)
	}
}
