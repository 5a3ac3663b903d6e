package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrInvalidRatio is returned for ratios with a zero side or a single keyword.
var ErrInvalidRatio = errors.New("ratio: invalid ratio")

// Ratio relates two asset kinds. Numerator carries the collateral side and
// Denominator the reference side: Numerator.Quantity units of the collateral
// are worth Denominator.Quantity units of the reference asset, so one unit of
// collateral converts to Denominator/Numerator reference units.
type Ratio struct {
	Numerator   Amount
	Denominator Amount
}

// MakeRatio validates and builds a ratio.
func MakeRatio(numerator, denominator Amount) (Ratio, error) {
	if numerator.keyword == denominator.keyword {
		return Ratio{}, fmt.Errorf("%w: both sides are %s", ErrInvalidRatio, numerator.keyword)
	}
	if numerator.IsZero() || denominator.IsZero() {
		return Ratio{}, fmt.Errorf("%w: %s:%s has a zero side", ErrInvalidRatio, numerator, denominator)
	}
	return Ratio{Numerator: numerator, Denominator: denominator}, nil
}

// Validate re-checks the ratio invariants for values built outside MakeRatio.
func (r Ratio) Validate() error {
	_, err := MakeRatio(r.Numerator, r.Denominator)
	return err
}

// Source returns the keyword converted from.
func (r Ratio) Source() Keyword { return r.Numerator.keyword }

// Target returns the keyword converted into.
func (r Ratio) Target() Keyword { return r.Denominator.keyword }

// String implements fmt.Stringer.
func (r Ratio) String() string {
	return fmt.Sprintf("%s:%s", r.Numerator, r.Denominator)
}

// Convert expresses amount in the ratio's target keyword, rounding down.
func Convert(amount Amount, ratio Ratio) (Amount, error) {
	if amount.keyword != ratio.Numerator.keyword {
		return Amount{}, fmt.Errorf("%w: cannot convert %s with %s ratio", ErrAssetMismatch, amount.keyword, ratio.Numerator.keyword)
	}
	if ratio.Numerator.IsZero() {
		return Amount{}, fmt.Errorf("%w: zero numerator", ErrInvalidRatio)
	}
	value, overflow := new(uint256.Int).MulDivOverflow(&amount.quantity, &ratio.Denominator.quantity, &ratio.Numerator.quantity)
	if overflow {
		return Amount{}, fmt.Errorf("%w: converting %s overflows", ErrInvalidQuantity, amount)
	}
	return amountFromInt(ratio.Denominator.keyword, value), nil
}
