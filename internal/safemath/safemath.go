// Package safemath provides checked signed 128-bit integer arithmetic for
// balance accounting. Every balance mutation in the vault goes through the
// Safe* helpers; raw operators are never applied to stored amounts.
package safemath

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strings"
)

var (
	// ErrOverflow is returned when a checked operation exceeds the Int128 range.
	ErrOverflow = errors.New("overflow")
	// ErrUnderflow is returned when a checked operation wraps below the Int128
	// range or would leave a balance negative.
	ErrUnderflow = errors.New("underflow")
)

// Int128 is a two's complement signed 128-bit integer (hi:lo limbs).
// The zero value is 0. Values are immutable; operations return new values.
type Int128 struct {
	hi int64
	lo uint64
}

var (
	// Max is the largest representable Int128 (2^127 - 1).
	Max = Int128{hi: math.MaxInt64, lo: math.MaxUint64}
	// Min is the smallest representable Int128 (-2^127).
	Min = Int128{hi: math.MinInt64, lo: 0}
)

// FromInt64 widens v to an Int128.
func FromInt64(v int64) Int128 {
	return Int128{hi: v >> 63, lo: uint64(v)}
}

// Parse reads a base-10 integer, rejecting values outside the Int128 range.
func Parse(s string) (Int128, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Int128{}, fmt.Errorf("safemath: invalid integer %q", s)
	}
	return fromBig(b)
}

// MustParse is Parse for compile-time constants; it panics on invalid input.
func MustParse(s string) Int128 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Sign returns -1, 0 or 1.
func (x Int128) Sign() int {
	if x.hi < 0 {
		return -1
	}
	if x.hi == 0 && x.lo == 0 {
		return 0
	}
	return 1
}

// IsZero reports whether x == 0.
func (x Int128) IsZero() bool { return x.hi == 0 && x.lo == 0 }

// Cmp returns -1 if x < y, 0 if x == y, 1 if x > y.
func (x Int128) Cmp(y Int128) int {
	if x.hi != y.hi {
		if x.hi < y.hi {
			return -1
		}
		return 1
	}
	if x.lo != y.lo {
		if x.lo < y.lo {
			return -1
		}
		return 1
	}
	return 0
}

// Int64 narrows x, reporting whether it fits.
func (x Int128) Int64() (int64, bool) {
	v := int64(x.lo)
	if x.hi != v>>63 {
		return 0, false
	}
	return v, true
}

func (x Int128) toBig() *big.Int {
	b := new(big.Int).SetInt64(x.hi)
	b.Lsh(b, 64)
	return b.Add(b, new(big.Int).SetUint64(x.lo))
}

var (
	bigMax = Max.toBig()
	bigMin = Min.toBig()
)

func fromBig(b *big.Int) (Int128, error) {
	if b.Cmp(bigMax) > 0 {
		return Int128{}, ErrOverflow
	}
	if b.Cmp(bigMin) < 0 {
		return Int128{}, ErrUnderflow
	}
	var v Int128
	abs := new(big.Int).Abs(b)
	words := abs.Bits()
	// big.Word is 64-bit on all supported platforms.
	if len(words) > 0 {
		v.lo = uint64(words[0])
	}
	if len(words) > 1 {
		v.hi = int64(words[1])
	}
	if b.Sign() < 0 {
		// Two's complement negate.
		v.lo = ^v.lo + 1
		v.hi = ^v.hi
		if v.lo == 0 {
			v.hi++
		}
	}
	return v, nil
}

// String renders x in base 10.
func (x Int128) String() string { return x.toBig().String() }

// SafeAdd returns a+b, failing with ErrOverflow/ErrUnderflow on wrap.
func SafeAdd(a, b Int128) (Int128, error) {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(uint64(a.hi), uint64(b.hi), carry)
	res := Int128{hi: int64(hi), lo: lo}
	// Same-sign operands flipping sign means the result wrapped.
	if a.hi >= 0 && b.hi >= 0 && res.hi < 0 {
		return Int128{}, ErrOverflow
	}
	if a.hi < 0 && b.hi < 0 && res.hi >= 0 {
		return Int128{}, ErrUnderflow
	}
	return res, nil
}

// SafeSub returns a-b, failing with ErrOverflow/ErrUnderflow on wrap.
func SafeSub(a, b Int128) (Int128, error) {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	hi, _ := bits.Sub64(uint64(a.hi), uint64(b.hi), borrow)
	res := Int128{hi: int64(hi), lo: lo}
	if a.hi >= 0 && b.hi < 0 && res.hi < 0 {
		return Int128{}, ErrOverflow
	}
	if a.hi < 0 && b.hi >= 0 && res.hi >= 0 {
		return Int128{}, ErrUnderflow
	}
	return res, nil
}

// SafeAddBalance credits amount onto balance. A negative amount is rejected:
// balances are only ever credited with non-negative values.
func SafeAddBalance(balance, amount Int128) (Int128, error) {
	if amount.Sign() < 0 {
		return Int128{}, ErrUnderflow
	}
	return SafeAdd(balance, amount)
}

// SafeSubBalance debits amount from balance. Rejects negative amounts and any
// debit that would leave the balance negative; an exact-zero result is valid.
func SafeSubBalance(balance, amount Int128) (Int128, error) {
	if amount.Sign() < 0 {
		return Int128{}, ErrUnderflow
	}
	res, err := SafeSub(balance, amount)
	if err != nil {
		return Int128{}, err
	}
	if res.Sign() < 0 {
		return Int128{}, ErrUnderflow
	}
	return res, nil
}

// MulUint32 returns a*n with overflow checking.
func MulUint32(a Int128, n uint32) (Int128, error) {
	product := new(big.Int).Mul(a.toBig(), new(big.Int).SetUint64(uint64(n)))
	return fromBig(product)
}

// ValidateNonNegative fails with ErrUnderflow when x < 0.
func ValidateNonNegative(x Int128) error {
	if x.Sign() < 0 {
		return ErrUnderflow
	}
	return nil
}

// Value stores the integer as its decimal string, which gorm maps onto
// NUMERIC columns across postgres, mysql and sqlite.
func (x Int128) Value() (driver.Value, error) { return x.String(), nil }

// Scan restores an Int128 from a NUMERIC column.
func (x *Int128) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*x = Int128{}
		return nil
	case int64:
		*x = FromInt64(v)
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*x = parsed
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*x = parsed
		return nil
	default:
		return fmt.Errorf("safemath: cannot scan %T into Int128", src)
	}
}

// GormDataType keeps gorm migrations on a wide-enough numeric column.
func (Int128) GormDataType() string { return "numeric(40,0)" }

// MarshalJSON renders the value as a JSON string to avoid float precision loss.
func (x Int128) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (x *Int128) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*x = parsed
	return nil
}
