package models

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a numeric field exactly as the exchange wrote it. The exchange mixes
// integer and fractional literals in the same position (100 and 100.5), and both
// must survive text, spreadsheet and SQL rendering unchanged.
type Number struct {
	literal string
	value   decimal.Decimal
	integer bool
}

// ParseNumber parses a JSON numeric literal such as "100", "-0.25" or "1.5e-7".
func ParseNumber(literal string) (Number, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return Number{}, fmt.Errorf("empty numeric literal")
	}
	if c := literal[0]; c != '-' && (c < '0' || c > '9') {
		return Number{}, fmt.Errorf("invalid numeric literal %q", literal)
	}

	value, err := decimal.NewFromString(literal)
	if err != nil {
		return Number{}, fmt.Errorf("invalid numeric literal %q: %w", literal, err)
	}

	return Number{
		literal: literal,
		value:   value,
		integer: !strings.ContainsAny(literal, ".eE"),
	}, nil
}

// MustNumber is ParseNumber for literals known to be valid, such as test fixtures.
func MustNumber(literal string) Number {
	n, err := ParseNumber(literal)
	if err != nil {
		panic(err)
	}
	return n
}

// IsZero reports whether n was never set.
func (n Number) IsZero() bool {
	return n.literal == ""
}

// IsInteger reports whether the exchange sent an integer literal.
func (n Number) IsInteger() bool {
	return n.integer
}

// String returns the literal as received.
func (n Number) String() string {
	return n.literal
}

// Decimal returns the exact value.
func (n Number) Decimal() decimal.Decimal {
	return n.value
}

// Float64 returns the nearest float64.
func (n Number) Float64() float64 {
	f, _ := n.value.Float64()
	return f
}

// Int64 returns the integer part of the value.
func (n Number) Int64() int64 {
	return n.value.IntPart()
}

// Value implements driver.Valuer. Integer literals bind as int64 and fractional
// ones as float64; an integer too wide for int64 falls back to float64.
func (n Number) Value() (driver.Value, error) {
	if n.IsZero() {
		return nil, nil
	}
	if n.integer {
		if i, err := strconv.ParseInt(n.literal, 10, 64); err == nil {
			return i, nil
		}
	}
	return n.Float64(), nil
}

// MarshalJSON writes the literal back unchanged.
func (n Number) MarshalJSON() ([]byte, error) {
	if n.IsZero() {
		return []byte("null"), nil
	}
	return []byte(n.literal), nil
}

// UnmarshalJSON accepts a JSON integer or float. Strings, booleans and null are rejected.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("numeric field is null")
	}

	parsed, err := ParseNumber(string(data))
	if err != nil {
		return err
	}

	*n = parsed
	return nil
}
