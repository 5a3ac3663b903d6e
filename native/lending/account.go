package lending

import (
	"context"
	"fmt"
	"iter"

	"lendsettle/core/types"
	"lendsettle/native/ledger"
	"lendsettle/native/settlement"
)

// OfferError is the caller-visible failure of an offer. Err keeps the
// underlying failure for errors.Is and errors.As.
type OfferError struct {
	Err       error
	UIMessage string
}

func (e *OfferError) Error() string {
	if e.Err == nil {
		return e.UIMessage
	}
	return fmt.Sprintf("%s: %v", e.UIMessage, e.Err)
}

func (e *OfferError) Unwrap() error { return e.Err }

// Invitation settles one offer against the account that issued it.
type Invitation func(ctx context.Context, pool settlement.PoolID) (*Account, error)

// Account is the handle returned to a depositor. It owns the user's balance
// store.
type Account struct {
	id     string
	store  *ledger.Store
	engine *Engine
}

// ID returns the account identifier, which also scopes its store.
func (a *Account) ID() string { return a.id }

// Store returns a point-in-time copy of the account's balance records.
func (a *Account) Store() map[types.Keyword]ledger.Record {
	return a.store.Records()
}

// Snapshot returns the account's records ordered by keyword.
func (a *Account) Snapshot() iter.Seq[ledger.Record] {
	return a.store.Snapshot()
}

// MaxBorrowable is the borrowing limit in the engine's reference asset.
func (a *Account) MaxBorrowable() (types.Amount, error) {
	return ComputeMaxBorrowable(a.store.Snapshot(), a.engine.cfg.ReferenceKeyword)
}

// AddCollateralInvitation returns an invitation depositing into this account.
func (a *Account) AddCollateralInvitation() Invitation {
	return func(ctx context.Context, pool settlement.PoolID) (*Account, error) {
		return a.engine.AddCollateral(ctx, a, pool)
	}
}

// BorrowInvitation returns an invitation borrowing against this account.
func (a *Account) BorrowInvitation() Invitation {
	return func(ctx context.Context, pool settlement.PoolID) (*Account, error) {
		return a.engine.Borrow(ctx, a, pool)
	}
}
