package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
)

func TestFromRejectsNonNumeric(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "12.3.4", "1,000"} {
		_, err := From(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, apperr.IsValidation(err), "input %q should fail validation", in)
	}
}

func TestFinalizeRoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1.005", want: "1.01"},
		{in: "1.004", want: "1.00"},
		{in: "2.675", want: "2.68"},
		{in: "-0.004", want: "0.00"},
		{in: "-1.005", want: "-1.01"},
		{in: "605.50", want: "605.50"},
		{in: "0", want: "0.00"},
	}

	for _, tt := range tests {
		got := MustFrom(tt.in).Finalize2()
		if got != tt.want {
			t.Fatalf("Finalize2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFinalizeIsStable(t *testing.T) {
	for _, in := range []string{"1.005", "99.999", "-3.14159", "0.001"} {
		once := MustFrom(in).Finalize2()
		twice := MustFrom(once).Finalize2()
		assert.Equal(t, once, twice, "finalize of %q must be a fixed point", in)
	}
}

func TestToMinorUnitsRoundTrip(t *testing.T) {
	for _, in := range []string{"605.50", "1.005", "0.01", "1234.567", "-12.345"} {
		m := MustFrom(in)
		cents, err := m.ToMinorUnits(100)
		require.NoError(t, err)

		back, err := FromMinorUnits(cents, 100)
		require.NoError(t, err)
		assert.Equal(t, m.Finalize2(), back.Finalize2(), "round trip of %q", in)
	}
}

func TestToMinorUnitsBadFactor(t *testing.T) {
	m := MustFrom("10.00")
	for _, factor := range []int64{0, -100, 25} {
		_, err := m.ToMinorUnits(factor)
		require.Error(t, err)
		assert.True(t, apperr.IsLogic(err))
	}
}

func TestDivideByZeroIsLogicError(t *testing.T) {
	_, err := MustFrom("605.50").Div(MustFrom("0"))
	require.Error(t, err)
	assert.True(t, apperr.IsLogic(err))
	assert.False(t, apperr.IsValidation(err))
}

func TestDivisionLosesNoCents(t *testing.T) {
	total := MustFrom("605.50")
	parts := 6

	share, err := total.Div(MustFrom("6"))
	require.NoError(t, err)

	sum := MustFrom("0")
	for i := 0; i < parts; i++ {
		sum = sum.Add(share)
	}
	assert.Equal(t, "605.50", sum.Finalize2())
}

func TestArithmeticIsImmutable(t *testing.T) {
	a := MustFrom("10.00")
	b := MustFrom("2.50")

	_ = a.Add(b)
	_ = a.Sub(b)
	_ = a.Mul(b)

	assert.Equal(t, "10.00", a.Finalize2())
	assert.Equal(t, "2.50", b.Finalize2())
}

func TestComparisonsAtCentPrecision(t *testing.T) {
	a := MustFrom("10.004")
	b := MustFrom("10.001")

	assert.True(t, a.Equal(b), "sub-cent differences compare equal")
	assert.False(t, a.GreaterThan(b))
	assert.True(t, a.GreaterThanOrEqual(b))

	c := MustFrom("10.01")
	assert.True(t, c.GreaterThan(a))
	assert.True(t, a.LessThan(c))
}

func TestRawKeepsInternalScale(t *testing.T) {
	assert.Equal(t, "1.00500000", MustFrom("1.005").Raw())
}
