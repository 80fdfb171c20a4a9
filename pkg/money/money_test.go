package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddSub(t *testing.T) {
	sum, err := Cents(150).Add(Cents(-50))
	require.NoError(t, err)
	assert.Equal(t, Cents(100), sum)

	diff, err := Cents(100).Sub(Cents(250))
	require.NoError(t, err)
	assert.Equal(t, Cents(-150), diff)
}

func TestMoney_Overflow(t *testing.T) {
	tests := []struct {
		name string
		op   func() (Money, error)
	}{
		{"add past max", func() (Money, error) { return Cents(math.MaxInt64).Add(1) }},
		{"add past min", func() (Money, error) { return Cents(math.MinInt64).Add(-1) }},
		{"sub past max", func() (Money, error) { return Cents(math.MaxInt64).Sub(-1) }},
		{"sub past min", func() (Money, error) { return Cents(math.MinInt64).Sub(1) }},
		{"neg of min", func() (Money, error) { return Cents(math.MinInt64).Neg() }},
		{"abs of min", func() (Money, error) { return Cents(math.MinInt64).Abs() }},
		{"percent past max", func() (Money, error) { return Cents(math.MaxInt64).Percent(decimal.NewFromInt(200)) }},
		{"sum past max", func() (Money, error) { return Sum(Cents(math.MaxInt64), 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.op()
			assert.ErrorIs(t, err, ErrOverflow)
		})
	}
}

func TestMoney_PercentRoundsHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		pct    string
		want   Money
	}{
		{"exact", 10000, "2.9", 290},
		{"half cent rounds up", 50, "1", 1},
		{"just below half", 49, "1", 0},
		{"x.5 boundary", 150, "1", 2},
		{"2.5 rounds up not to even", 250, "1", 3},
		{"fractional pct", 1999, "2.9", 58},
		{"zero pct", 123456, "0", 0},
		{"zero amount", 0, "3", 0},
		{"negative half away from zero", -50, "1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.amount.Percent(decimal.RequireFromString(tt.pct))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "100.00", Cents(10000).String())
	assert.Equal(t, "-12.05", Cents(-1205).String())
	assert.Equal(t, "0.07", Cents(7).String())
}
