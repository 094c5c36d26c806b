// Package money converts between human currency values and integer minor units.
//
// Every stored or compared amount in the service is an int64 count of minor
// units (cents). Strings are always read as major units ("15.00" is 1500),
// integer numbers are assumed to already be minor units, and fractional
// numbers are read as major units.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxSafe is the largest amount accepted, 2^53-1, so values stay exact in JSON clients.
const MaxSafe int64 = 1<<53 - 1

// PricePerUnits is the catalog pricing base: service prices are quoted per 1000 units.
const PricePerUnits int64 = 1000

var (
	ErrInvalidAmount = errors.New("invalid amount")

	hundred  = decimal.NewFromInt(100)
	maxSafeD = decimal.NewFromInt(MaxSafe)
)

// Normalize converts input to minor units. Invalid input yields 0, which
// checkout callers must treat as a validation failure.
func Normalize(input any) int64 {
	switch v := input.(type) {
	case string:
		return fromMajorString(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return clampInt(i)
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return fromFloat(f)
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return clampInt(int64(v))
	case int32:
		return clampInt(int64(v))
	case int64:
		return clampInt(v)
	case uint:
		if uint64(v) > uint64(MaxSafe) {
			return 0
		}
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		if v > uint64(MaxSafe) {
			return 0
		}
		return int64(v)
	default:
		return 0
	}
}

// IsValid reports whether x is a non-negative safe integer amount.
func IsValid(x int64) bool {
	return x >= 0 && x <= MaxSafe
}

// FromMajor parses a provider amount such as "10.00" into minor units.
func FromMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Mul(hundred).Round(0)
	if minor.IsNegative() || minor.GreaterThan(maxSafeD) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return minor.IntPart(), nil
}

// ToMajor formats minor units as a two-decimal major amount, 1500 -> "15.00".
func ToMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// LineAmount returns round(pricePer1000 * quantity / 1000), rounding half away from zero.
func LineAmount(pricePer1000, quantity int64) int64 {
	if pricePer1000 <= 0 || quantity <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(pricePer1000).
		Mul(decimal.NewFromInt(quantity)).
		Div(decimal.NewFromInt(PricePerUnits)).
		Round(0)
	if amount.GreaterThan(maxSafeD) {
		return 0
	}
	return amount.IntPart()
}

// Percent returns round(amount * bps / 10000).
func Percent(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

func fromMajorString(s string) int64 {
	v, err := FromMajor(s)
	if err != nil {
		return 0
	}
	return v
}

func fromFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f == math.Trunc(f) {
		if f > float64(MaxSafe) {
			return 0
		}
		return int64(f)
	}
	minor := decimal.NewFromFloat(f).Mul(hundred).Round(0)
	if minor.GreaterThan(maxSafeD) {
		return 0
	}
	return minor.IntPart()
}

func clampInt(v int64) int64 {
	if !IsValid(v) {
		return 0
	}
	return v
}
