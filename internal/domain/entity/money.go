package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in cents. All refund arithmetic is done in the smallest
// currency unit so that rendered amounts round-trip exactly.
type Money int64

// Cents returns the raw cent value
func (m Money) Cents() int64 {
	return int64(m)
}

// String formats the amount as dollars, e.g. "$19.00"
func (m Money) String() string {
	return "$" + m.Decimal()
}

// Decimal formats the amount without a currency symbol, e.g. "19.00"
func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m == 0
}

// MulPercent returns m * percent / 100 rounded half-up to the cent
func (m Money) MulPercent(percent float64) Money {
	return Money(math.Round(float64(m) * percent / 100))
}

// ParseMoney parses "19", "19.5", "19.00" or "$1,019.00" into cents
func ParseMoney(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(raw, "-") {
		neg = true
		raw = raw[1:]
	}

	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	total := dollars*100 + cents
	if neg {
		total = -total
	}
	return Money(total), nil
}
