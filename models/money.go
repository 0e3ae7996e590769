package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// microsPerDollar is the fixed-point scale of Money.
const microsPerDollar = 1_000_000

// Money is an amount in US dollars stored as integer micro-dollars so that
// sums over many cost records stay exact.
type Money int64

// Dollars converts a floating point dollar amount to Money, rounding to the
// nearest micro-dollar.
func Dollars(d float64) Money {
	return Money(math.Round(d * microsPerDollar))
}

// Micros returns the raw micro-dollar amount.
func (m Money) Micros() int64 {
	return int64(m)
}

// Float returns the amount in dollars. Use only for display.
func (m Money) Float() float64 {
	return float64(m) / microsPerDollar
}

// String formats the amount as a decimal dollar value without trailing zeros.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / microsPerDollar
	frac := v % microsPerDollar
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, fracStr)
}

// MarshalJSON encodes Money as a JSON number in dollars.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number (or numeric string) in dollars.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*m = 0
		return nil
	}
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMoney parses a decimal dollar string such as "0.04" or "12".
// At most six fractional digits are significant.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	wholePart, fracPart, _ := strings.Cut(s, ".")
	if wholePart == "" {
		wholePart = "0"
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var frac int64
	if fracPart != "" {
		if len(fracPart) > 6 {
			fracPart = fracPart[:6]
		}
		fracPart += strings.Repeat("0", 6-len(fracPart))
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}

	v := whole*microsPerDollar + frac
	if neg {
		v = -v
	}
	return Money(v), nil
}
