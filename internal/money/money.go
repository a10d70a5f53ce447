// Package money is the decimal arithmetic boundary for all monetary values.
// Amounts travel through the engine as decimal strings and are only ever
// combined through shopspring/decimal, never through floats.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"jualin/pos/internal/store"
)

// Zero is the canonical zero amount.
const Zero = "0"

// Parse validates an amount string and returns its decimal value. Empty
// strings and float-ish garbage are rejected as invalid input; negative
// amounts are allowed here because change math subtracts before comparing.
func Parse(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", store.ErrInvalidInput)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", store.ErrInvalidInput, amount)
	}
	return d, nil
}

// ParsePrice is Parse restricted to non-negative amounts.
func ParsePrice(amount string) (decimal.Decimal, error) {
	d, err := Parse(amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative amount %q", store.ErrInvalidInput, amount)
	}
	return d, nil
}

// Add returns a+b for two amount strings.
func Add(a string, b string) (string, error) {
	da, err := Parse(a)
	if err != nil {
		return "", err
	}
	db, err := Parse(b)
	if err != nil {
		return "", err
	}
	return da.Add(db).String(), nil
}

// Sub returns a-b for two amount strings.
func Sub(a string, b string) (string, error) {
	da, err := Parse(a)
	if err != nil {
		return "", err
	}
	db, err := Parse(b)
	if err != nil {
		return "", err
	}
	return da.Sub(db).String(), nil
}

// MulQty returns amount*qty, the line-total primitive.
func MulQty(amount string, qty int) (string, error) {
	d, err := Parse(amount)
	if err != nil {
		return "", err
	}
	return d.Mul(decimal.NewFromInt(int64(qty))).String(), nil
}

// Cmp compares two amount strings: -1 if a<b, 0 if equal, 1 if a>b.
func Cmp(a string, b string) (int, error) {
	da, err := Parse(a)
	if err != nil {
		return 0, err
	}
	db, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// Canonical reformats an amount into its canonical string form
// ("007.50" -> "7.5"). Parse+String round-trips without precision loss.
func Canonical(amount string) (string, error) {
	d, err := Parse(amount)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// IsZero reports whether the amount is exactly zero.
func IsZero(amount string) bool {
	d, err := Parse(amount)
	if err != nil {
		return false
	}
	return d.IsZero()
}
