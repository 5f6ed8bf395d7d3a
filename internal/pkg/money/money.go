package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
)

const (
	// internalScale absorbs intermediate rounding error across chained
	// operations; display rounding happens only in Finalize.
	internalScale int32 = 8
	displayScale  int32 = 2
)

// Money is an immutable fixed-point decimal amount. Arithmetic operates at
// an internal scale of 8 fractional digits; comparisons and display work at
// cent precision.
type Money struct {
	d decimal.Decimal
}

// From parses a decimal string into a Money value.
func From(value string) (Money, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return Money{}, &apperr.ValidationError{Msg: "amount must be numeric"}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Money{}, &apperr.ValidationError{Msg: "amount must be numeric"}
	}
	return Money{d: d.Round(internalScale)}, nil
}

// MustFrom is From for trusted literals; it panics on invalid input.
func MustFrom(value string) Money {
	m, err := From(value)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinorUnits builds a Money from an integer amount of minor units
// (e.g. cents with factor 100), the form gateway APIs speak.
func FromMinorUnits(units int64, factor int64) (Money, error) {
	exp, err := factorExponent(factor)
	if err != nil {
		return Money{}, err
	}
	return Money{d: decimal.New(units, -exp)}, nil
}

func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d).Round(internalScale)}
}

func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d).Round(internalScale)}
}

func (m Money) Mul(o Money) Money {
	return Money{d: m.d.Mul(o.d).Round(internalScale)}
}

// Div divides by o at the internal scale. A zero divisor is a caller bug and
// fails with a LogicError, not a recoverable validation error.
func (m Money) Div(o Money) (Money, error) {
	if o.d.IsZero() {
		return Money{}, &apperr.LogicError{Msg: "money: division by zero"}
	}
	return Money{d: m.d.DivRound(o.d, internalScale)}, nil
}

// Finalize rounds half-up (away from zero at the midpoint) to the requested
// display scale and renders a fixed-scale string. Negative amounts that
// round to zero render as "0.00", never "-0.00".
func (m Money) Finalize(scale int32) string {
	r := m.d.Round(scale)
	if r.IsZero() {
		r = r.Abs()
	}
	return r.StringFixed(scale)
}

// Finalize2 is Finalize at the default display scale of 2.
func (m Money) Finalize2() string {
	return m.Finalize(displayScale)
}

// ToMinorUnits rounds to the display scale implied by factor and returns the
// amount as an integer count of minor units (cents for factor 100).
func (m Money) ToMinorUnits(factor int64) (int64, error) {
	exp, err := factorExponent(factor)
	if err != nil {
		return 0, err
	}
	return m.d.Round(exp).Shift(exp).IntPart(), nil
}

// Raw exposes the internal 8-digit representation for diagnostics and tests.
// It is never meant for display.
func (m Money) Raw() string {
	return m.d.StringFixed(internalScale)
}

// Comparisons operate at cent precision: values that differ only beyond the
// second decimal are considered equal.

func (m Money) Equal(o Money) bool {
	return m.cmp(o) == 0
}

func (m Money) GreaterThan(o Money) bool {
	return m.cmp(o) > 0
}

func (m Money) GreaterThanOrEqual(o Money) bool {
	return m.cmp(o) >= 0
}

func (m Money) LessThan(o Money) bool {
	return m.cmp(o) < 0
}

func (m Money) LessThanOrEqual(o Money) bool {
	return m.cmp(o) <= 0
}

func (m Money) IsZero() bool {
	return m.d.Round(displayScale).IsZero()
}

func (m Money) IsNegative() bool {
	return m.d.Round(displayScale).IsNegative()
}

func (m Money) cmp(o Money) int {
	return m.d.Round(displayScale).Cmp(o.d.Round(displayScale))
}

func factorExponent(factor int64) (int32, error) {
	if factor <= 0 {
		return 0, &apperr.LogicError{Msg: "money: minor unit factor must be a positive power of ten"}
	}
	exp := int32(0)
	for f := factor; f > 1; f /= 10 {
		if f%10 != 0 {
			return 0, &apperr.LogicError{Msg: "money: minor unit factor must be a positive power of ten"}
		}
		exp++
	}
	return exp, nil
}
