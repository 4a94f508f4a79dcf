package decimal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotANumber is returned when a value cannot be read as a finite number
var ErrNotANumber = errors.New("not a finite number")

// Zero is decimal zero
var Zero = decimal.Zero

// Bounds on accepted values. Rendering a value with fixed places expands
// its exponent into digits, so both stay small.
const (
	MaxExponent = 30
	MaxDigits   = 40
)

// Coerce converts a numeric value or numeric-looking text into a decimal.
// NaN, infinities and values outside MaxExponent or MaxDigits are rejected.
func Coerce(v any) (decimal.Decimal, error) {
	d, err := coerce(v)
	if err != nil {
		return Zero, err
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return Zero, nil
	}
	if exp := d.Exponent(); exp > MaxExponent || exp < -MaxExponent {
		return Zero, fmt.Errorf("%w: exponent %d out of range", ErrNotANumber, exp)
	}
	if n := d.NumDigits(); n > MaxDigits {
		return Zero, fmt.Errorf("%w: %d significant digits", ErrNotANumber, n)
	}
	return d, nil
}

func coerce(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return Zero, ErrNotANumber
		}
		return *n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int8:
		return decimal.NewFromInt(int64(n)), nil
	case int16:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return decimal.NewFromUint64(uint64(n)), nil
	case uint8:
		return decimal.NewFromUint64(uint64(n)), nil
	case uint16:
		return decimal.NewFromUint64(uint64(n)), nil
	case uint32:
		return decimal.NewFromUint64(uint64(n)), nil
	case uint64:
		return decimal.NewFromUint64(n), nil
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		return FromString(n.String())
	case string:
		return FromString(n)
	default:
		return Zero, fmt.Errorf("%w: unsupported type %T", ErrNotANumber, v)
	}
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero, ErrNotANumber
	}
	return decimal.NewFromFloat(f), nil
}

// FromString parses decimal from trimmed text within the same bounds as
// Coerce
func FromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrNotANumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrNotANumber, err)
	}
	return bounded(d)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Fixed returns a value transform that renders numbers with exactly places
// fraction digits. Non-decimal values pass through unchanged.
func Fixed(places int32) func(any) any {
	return func(v any) any {
		d, ok := v.(decimal.Decimal)
		if !ok {
			return v
		}
		return d.StringFixed(places)
	}
}

// Text renders a decimal without exponent and without trailing zeros
func Text(d decimal.Decimal) string {
	return d.String()
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
