package model

import (
	"fmt"
	"math/big"
	"strconv"
)

// Money is an amount in minor units (cents).
type Money int64

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string such as 1000, "1000.5" or 1000.50.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMoney parses a decimal string into cents, rounding half up.
func ParseMoney(s string) (Money, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return RoundCents(r.Mul(r, big.NewRat(100, 1))), nil
}

// RoundCents rounds an amount expressed in cents to the nearest cent,
// halves away from zero.
func RoundCents(cents *big.Rat) Money {
	num := new(big.Int).Set(cents.Num())
	den := cents.Denom()
	neg := num.Sign() < 0
	num.Abs(num)

	// floor((2*num + den) / (2*den))
	twice := new(big.Int).Mul(num, big.NewInt(2))
	twice.Add(twice, den)
	q := new(big.Int).Quo(twice, new(big.Int).Mul(den, big.NewInt(2)))
	if neg {
		q.Neg(q)
	}
	return Money(q.Int64())
}
