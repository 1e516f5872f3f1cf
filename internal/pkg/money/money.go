// Package money holds the exact-decimal helpers used for every amount in the
// reconciliation core. Amounts never pass through float arithmetic.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits persisted for money columns.
const Scale = 2

// Parse coerces a loosely typed value (JSON number, string, integer, float or
// decimal) into a decimal. The boolean is false when v is absent or not numeric.
func Parse(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case json.Number:
		return parseString(t.String())
	case string:
		return parseString(t)
	case []byte:
		return parseString(string(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint:
		return parseString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		return parseString(strconv.FormatUint(t, 10))
	default:
		return decimal.Zero, false
	}
}

func parseString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	// Decimal comma ("150,30") as sent by some Brazilian providers.
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// MustParse is Parse for trusted literals. It panics on unparsable input.
func MustParse(v any) decimal.Decimal {
	d, ok := Parse(v)
	if !ok {
		panic(fmt.Sprintf("money: cannot parse %v (%T)", v, v))
	}
	return d
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// NonNegative returns v, or zero when v is negative.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Round rounds half away from zero to the persisted scale.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}
