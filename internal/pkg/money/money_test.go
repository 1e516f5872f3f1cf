package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"json number", json.Number("100.10"), "100.1", true},
		{"string", "50.20", "50.2", true},
		{"decimal comma", "150,30", "150.3", true},
		{"int", 100, "100", true},
		{"int64", int64(7), "7", true},
		{"uint", uint(3), "3", true},
		{"float", 0.1, "0.1", true},
		{"decimal", decimal.RequireFromString("9.99"), "9.99", true},
		{"nil", nil, "0", false},
		{"empty string", "  ", "0", false},
		{"garbage", "abc", "0", false},
		{"bool", true, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestSumIsExact(t *testing.T) {
	total := Sum(MustParse("0.10"), MustParse(json.Number("0.20")))
	assert.True(t, total.Equal(decimal.RequireFromString("0.30")), "got %s", total)
	assert.Equal(t, "0.30", total.StringFixed(Scale))
}

func TestMustParsePanicsOnGarbage(t *testing.T) {
	assert.Equal(t, "12.50", MustParse("12.5").StringFixed(Scale))
	assert.Panics(t, func() { MustParse("twelve") })
	assert.Panics(t, func() { MustParse(nil) })
}

func TestClampAndNonNegative(t *testing.T) {
	lo, hi := decimal.Zero, decimal.NewFromInt(10)
	assert.True(t, Clamp(decimal.NewFromInt(-1), lo, hi).Equal(lo))
	assert.True(t, Clamp(decimal.NewFromInt(11), lo, hi).Equal(hi))
	assert.True(t, Clamp(decimal.NewFromInt(5), lo, hi).Equal(decimal.NewFromInt(5)))
	assert.True(t, NonNegative(decimal.NewFromInt(-3)).IsZero())
	assert.Equal(t, "1.01", Round(decimal.RequireFromString("1.005")).String())
}
