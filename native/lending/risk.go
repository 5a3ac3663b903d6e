package lending

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"lendsettle/core/types"
	"lendsettle/native/ledger"
	"lendsettle/native/settlement"
)

// ErrInsufficientCollateral matches every *InsufficientCollateralError.
var ErrInsufficientCollateral = errors.New("lending: insufficient collateral")

// InsufficientCollateralError reports a borrow request at or above the
// account's borrowing limit.
type InsufficientCollateralError struct {
	Requested types.Amount
	Max       types.Amount
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("%s: requested %s, max borrowable %s", ErrInsufficientCollateral, e.Requested, e.Max)
}

func (e *InsufficientCollateralError) Is(target error) bool {
	return target == ErrInsufficientCollateral
}

// ComputeMaxBorrowable sums the converted value of every record carrying a
// MaxLtvRatio. Records without a ratio contribute nothing.
func ComputeMaxBorrowable(records iter.Seq[ledger.Record], reference types.Keyword) (types.Amount, error) {
	total := types.AmountOf(reference, 0)
	for record := range records {
		if record.MaxLtvRatio == nil {
			continue
		}
		if target := record.MaxLtvRatio.Target(); target != reference {
			return types.Amount{}, fmt.Errorf("%w: %s is priced in %s, not %s", types.ErrAssetMismatch, record.Keyword, target, reference)
		}
		value, err := types.Convert(record.Quantity, *record.MaxLtvRatio)
		if err != nil {
			return types.Amount{}, fmt.Errorf("lending: value %s: %w", record.Keyword, err)
		}
		total, err = types.Add(total, value)
		if err != nil {
			return types.Amount{}, err
		}
	}
	return total, nil
}

// CheckBorrowRequest accepts requested only when it is strictly below max.
func CheckBorrowRequest(max, requested types.Amount) error {
	cmp, err := max.Cmp(requested)
	if err != nil {
		return err
	}
	if cmp <= 0 {
		return &InsufficientCollateralError{Requested: requested, Max: max}
	}
	return nil
}

// ValidateBorrow gates a withdrawal on the user store's borrowing limit in
// the reference asset.
func ValidateBorrow(reference types.Keyword) settlement.Step {
	return func(_ context.Context, sc settlement.Context) (settlement.Context, error) {
		if sc.UserStore == nil {
			return sc, errNilAccount
		}
		max, err := ComputeMaxBorrowable(sc.UserStore.Snapshot(), reference)
		if err != nil {
			return sc, err
		}
		if err := CheckBorrowRequest(max, sc.Want); err != nil {
			return sc, err
		}
		return sc, nil
	}
}

// BorrowPhase tracks a single borrow attempt.
type BorrowPhase uint8

const (
	BorrowReceived BorrowPhase = iota
	BorrowValidating
	BorrowAccepted
	BorrowSettling
	BorrowCommitted
	BorrowRejected
)

func (p BorrowPhase) String() string {
	switch p {
	case BorrowReceived:
		return "received"
	case BorrowValidating:
		return "validating"
	case BorrowAccepted:
		return "accepted"
	case BorrowSettling:
		return "settling"
	case BorrowCommitted:
		return "committed"
	case BorrowRejected:
		return "rejected"
	default:
		return fmt.Sprintf("BorrowPhase(%d)", uint8(p))
	}
}

// Terminal reports whether no further transition is possible.
func (p BorrowPhase) Terminal() bool {
	return p == BorrowCommitted || p == BorrowRejected
}

var borrowTransitions = map[BorrowPhase][]BorrowPhase{
	BorrowReceived:   {BorrowValidating, BorrowRejected},
	BorrowValidating: {BorrowAccepted, BorrowRejected},
	BorrowAccepted:   {BorrowSettling},
	BorrowSettling:   {BorrowCommitted, BorrowRejected},
}

// CanTransition reports whether next may follow p.
func (p BorrowPhase) CanTransition(next BorrowPhase) bool {
	for _, allowed := range borrowTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

type borrowAttempt struct {
	phase   BorrowPhase
	history []BorrowPhase
	observe func(BorrowPhase)
}

func newBorrowAttempt(observe func(BorrowPhase)) *borrowAttempt {
	a := &borrowAttempt{phase: BorrowReceived, history: []BorrowPhase{BorrowReceived}, observe: observe}
	if observe != nil {
		observe(BorrowReceived)
	}
	return a
}

func (a *borrowAttempt) advance(next BorrowPhase) error {
	if !a.phase.CanTransition(next) {
		return fmt.Errorf("lending: borrow cannot move from %s to %s", a.phase, next)
	}
	a.phase = next
	a.history = append(a.history, next)
	if a.observe != nil {
		a.observe(next)
	}
	return nil
}
