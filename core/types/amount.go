package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidQuantity is returned when a quantity is negative or does not
	// fit the 256-bit range.
	ErrInvalidQuantity = errors.New("amount: invalid quantity")
	// ErrAssetMismatch is returned when arithmetic combines amounts of
	// different asset keywords.
	ErrAssetMismatch = errors.New("amount: asset keyword mismatch")
	// ErrInsufficientQuantity is returned when a subtraction would produce a
	// negative quantity.
	ErrInsufficientQuantity = errors.New("amount: insufficient quantity")
	// ErrInvalidKeyword is returned for empty asset keywords.
	ErrInvalidKeyword = errors.New("amount: keyword required")
)

// Keyword identifies an asset kind. Keywords are case-sensitive.
type Keyword string

// String implements fmt.Stringer.
func (k Keyword) String() string { return string(k) }

// Validate ensures the keyword is non-empty and free of surrounding spaces.
func (k Keyword) Validate() error {
	if k == "" || strings.TrimSpace(string(k)) != string(k) {
		return fmt.Errorf("%w: %q", ErrInvalidKeyword, string(k))
	}
	return nil
}

// Amount is a non-negative quantity tagged with the asset keyword it is
// denominated in. The zero value is an empty amount with no keyword.
type Amount struct {
	keyword  Keyword
	quantity uint256.Int
}

// MakeAmount builds an amount from a signed quantity.
func MakeAmount(keyword Keyword, quantity int64) (Amount, error) {
	if quantity < 0 {
		return Amount{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return Amount{keyword: keyword, quantity: *uint256.NewInt(uint64(quantity))}, nil
}

// NewAmount builds an amount from an arbitrary precision integer.
func NewAmount(keyword Keyword, quantity *big.Int) (Amount, error) {
	if quantity == nil {
		return Amount{keyword: keyword}, nil
	}
	if quantity.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	value, overflow := uint256.FromBig(quantity)
	if overflow {
		return Amount{}, fmt.Errorf("%w: %s exceeds 256 bits", ErrInvalidQuantity, quantity)
	}
	return Amount{keyword: keyword, quantity: *value}, nil
}

// ParseAmount parses a base-10 quantity string.
func ParseAmount(keyword Keyword, quantity string) (Amount, error) {
	trimmed := strings.TrimSpace(quantity)
	if trimmed == "" {
		return Amount{keyword: keyword}, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidQuantity, quantity)
	}
	return NewAmount(keyword, value)
}

// AmountOf wraps an unsigned quantity. It never fails.
func AmountOf(keyword Keyword, quantity uint64) Amount {
	return Amount{keyword: keyword, quantity: *uint256.NewInt(quantity)}
}

func amountFromInt(keyword Keyword, quantity *uint256.Int) Amount {
	return Amount{keyword: keyword, quantity: *quantity}
}

// Keyword returns the asset keyword.
func (a Amount) Keyword() Keyword { return a.keyword }

// Quantity returns a copy of the quantity.
func (a Amount) Quantity() *uint256.Int {
	q := a.quantity
	return &q
}

// Big returns the quantity as a big.Int.
func (a Amount) Big() *big.Int { return a.quantity.ToBig() }

// IsZero reports whether the quantity is zero.
func (a Amount) IsZero() bool { return a.quantity.IsZero() }

// Cmp compares quantities of two amounts sharing a keyword.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.keyword != b.keyword {
		return 0, fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, a.keyword, b.keyword)
	}
	return a.quantity.Cmp(&b.quantity), nil
}

// Dec renders the quantity in base 10.
func (a Amount) Dec() string { return a.quantity.Dec() }

// String implements fmt.Stringer.
func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.quantity.Dec(), a.keyword)
}

// Add returns a + b. Both amounts must share a keyword.
func Add(a, b Amount) (Amount, error) {
	if a.keyword != b.keyword {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrAssetMismatch, a.keyword, b.keyword)
	}
	sum, overflow := new(uint256.Int).AddOverflow(&a.quantity, &b.quantity)
	if overflow {
		return Amount{}, fmt.Errorf("%w: %s overflows", ErrInvalidQuantity, a.keyword)
	}
	return amountFromInt(a.keyword, sum), nil
}

// Sub returns a - b. Both amounts must share a keyword and the result must
// not be negative.
func Sub(a, b Amount) (Amount, error) {
	if a.keyword != b.keyword {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrAssetMismatch, a.keyword, b.keyword)
	}
	diff, underflow := new(uint256.Int).SubOverflow(&a.quantity, &b.quantity)
	if underflow {
		return Amount{}, fmt.Errorf("%w: %s < %s", ErrInsufficientQuantity, a, b)
	}
	return amountFromInt(a.keyword, diff), nil
}

// Sum folds amounts of one keyword. An empty input yields the zero amount of
// keyword.
func Sum(keyword Keyword, amounts ...Amount) (Amount, error) {
	total := Amount{keyword: keyword}
	for _, amount := range amounts {
		next, err := Add(total, amount)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}
