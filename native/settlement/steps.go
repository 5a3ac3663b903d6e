package settlement

import (
	"context"
	"fmt"

	"lendsettle/core/types"
	"lendsettle/native/ledger"
)

// Step names reported to hooks.
const (
	StepExtractWantAmount   = "extractWantAmount"
	StepRequireGiveAmount   = "requireGiveAmount"
	StepRequireEmptyGive    = "requireEmptyGive"
	StepCheckRecordable     = "checkRecordable"
	StepMintAgainstWant     = "mintAgainstWant"
	StepStageAdminIncrement = "stageAdminIncrement"
	StepStageUserIncrement  = "stageUserIncrement"
	StepCommitReallocation  = "commitReallocation"
	StepCloseUserOffer      = "closeUserOffer"
	StepRecordAdminDeposit  = "recordAdminDeposit"
	StepRecordUserDeposit   = "recordUserDeposit"
	StepRecomputeDerived    = "recomputeDerivedMaxBorrowable"
	StepValidateDeposit     = "validateDeposit"
	StepValidateWithdrawal  = "validateWithdrawal"
)

// ExtractWantAmount reads the offer from the user pool, unless one is already
// present, and pulls out the single want amount and the optional single give
// amount.
func ExtractWantAmount(_ context.Context, sc Context) (Context, error) {
	offer := sc.Offer
	if offer.Want == nil && offer.Give == nil {
		if sc.Pools == nil {
			return sc, errPoolsMissing
		}
		fetched, err := sc.Pools.OfferAmounts(sc.UserPool)
		if err != nil {
			return sc, fmt.Errorf("settlement: offer amounts for %s: %w", sc.UserPool, err)
		}
		offer = fetched
	}

	want, ok := offer.Want.Single()
	if !ok {
		return sc, fmt.Errorf("%w: want carries %d keywords", ErrMalformedOffer, len(offer.Want))
	}
	if want.IsZero() {
		return sc, fmt.Errorf("%w: want %s is empty", ErrMalformedOffer, want.Keyword())
	}

	next := sc
	next.Offer = offer.Clone()
	next.Want = want
	next.Give = types.Amount{}
	next.HasGive = false
	switch len(offer.Give) {
	case 0:
	case 1:
		give, _ := offer.Give.Single()
		next.Give = give
		next.HasGive = true
	default:
		return sc, fmt.Errorf("%w: give carries %d keywords", ErrMalformedOffer, len(offer.Give))
	}
	return next, nil
}

// RequireGiveAmount rejects deposit offers with nothing to give.
func RequireGiveAmount(_ context.Context, sc Context) (Context, error) {
	if !sc.HasGive || sc.Give.IsZero() {
		return sc, fmt.Errorf("%w: deposit requires a give amount", ErrMalformedOffer)
	}
	return sc, nil
}

// RequireEmptyGive rejects withdrawal offers that also give something.
func RequireEmptyGive(_ context.Context, sc Context) (Context, error) {
	if sc.HasGive {
		return sc, fmt.Errorf("%w: withdrawal cannot give %s", ErrMalformedOffer, sc.Give)
	}
	return sc, nil
}

// CheckRecordable dry-runs both store upserts of the give amount so a
// deposit that could not be recorded fails before anything is minted or
// moved.
func CheckRecordable(_ context.Context, sc Context) (Context, error) {
	if sc.AdminStore == nil || sc.UserStore == nil {
		return sc, errStoreMissing
	}
	if err := sc.AdminStore.CheckUpsert(sc.Give.Keyword(), sc.Give, ledger.Extra{}); err != nil {
		return sc, fmt.Errorf("settlement: admin store cannot record %s: %w", sc.Give, err)
	}
	extra := ledger.Extra{MaxLtvRatio: sc.ratioFor(sc.Give.Keyword())}
	if err := sc.UserStore.CheckUpsert(sc.Give.Keyword(), sc.Give, extra); err != nil {
		return sc, fmt.Errorf("settlement: user store cannot record %s: %w", sc.Give, err)
	}
	return sc, nil
}

// MintAgainstWant mints the want amount into the admin pool. It is the first
// mutating step, so cancellation is honoured here and nowhere after.
func MintAgainstWant(ctx context.Context, sc Context) (Context, error) {
	if err := ctx.Err(); err != nil {
		return sc, err
	}
	if sc.Pools == nil {
		return sc, errPoolsMissing
	}
	if err := sc.Pools.Mint(ctx, sc.AdminPool, sc.Want); err != nil {
		return sc, fmt.Errorf("%w: %s: %w", ErrMintFailure, sc.Want, err)
	}
	return sc, nil
}

// StageAdminIncrement stages the give amount moving from the user pool to the
// admin pool. Offers without a give side stage nothing.
func StageAdminIncrement(_ context.Context, sc Context) (Context, error) {
	if !sc.HasGive {
		return sc, nil
	}
	return stageTransfer(sc, sc.UserPool, sc.AdminPool, sc.Give), nil
}

// StageUserIncrement stages the want amount moving from the admin pool to the
// user pool.
func StageUserIncrement(_ context.Context, sc Context) (Context, error) {
	return stageTransfer(sc, sc.AdminPool, sc.UserPool, sc.Want), nil
}

func stageTransfer(sc Context, from, to PoolID, amount types.Amount) Context {
	debit := Delta{Pool: from, Add: types.Allocation{}, Sub: types.Allocation{amount.Keyword(): amount}}
	credit := Delta{Pool: to, Add: types.Allocation{amount.Keyword(): amount}, Sub: types.Allocation{}}
	return sc.withDelta(debit).withDelta(credit)
}

// CheckBalanced verifies that, per keyword, the staged credits equal the
// staged debits.
func CheckBalanced(deltas []Delta) error {
	credits := make(types.Allocation)
	debits := make(types.Allocation)
	for _, delta := range deltas {
		for _, amount := range delta.Add {
			if err := credits.Add(amount); err != nil {
				return err
			}
		}
		for _, amount := range delta.Sub {
			if err := debits.Add(amount); err != nil {
				return err
			}
		}
	}
	if !credits.Equal(debits) {
		return fmt.Errorf("%w: credits %s, debits %s", ErrImbalancedTransfer, credits, debits)
	}
	return nil
}

// CommitReallocation applies the staged deltas in one reallocate call and
// clears them.
func CommitReallocation(ctx context.Context, sc Context) (Context, error) {
	if sc.Pools == nil {
		return sc, errPoolsMissing
	}
	if err := CheckBalanced(sc.Deltas); err != nil {
		return sc, err
	}
	if err := sc.Pools.Reallocate(ctx, sc.Deltas...); err != nil {
		return sc, fmt.Errorf("settlement: reallocate: %w", err)
	}
	next := sc
	next.Deltas = nil
	return next, nil
}

// CloseUserOffer exits the user's pool.
func CloseUserOffer(ctx context.Context, sc Context) (Context, error) {
	if sc.Pools == nil {
		return sc, errPoolsMissing
	}
	if err := sc.Pools.Exit(ctx, sc.UserPool); err != nil {
		return sc, fmt.Errorf("settlement: exit %s: %w", sc.UserPool, err)
	}
	return sc, nil
}

// RecordAdminDeposit accumulates the consumed give amount in the admin store.
func RecordAdminDeposit(_ context.Context, sc Context) (Context, error) {
	if sc.AdminStore == nil {
		return sc, errStoreMissing
	}
	if _, err := sc.AdminStore.Upsert(sc.Give.Keyword(), sc.Give, ledger.Extra{}); err != nil {
		return sc, fmt.Errorf("settlement: record admin deposit: %w", err)
	}
	return sc, nil
}

// RecordUserDeposit accumulates the consumed give amount in the user store,
// refreshing the configured MaxLtvRatio for that keyword.
func RecordUserDeposit(_ context.Context, sc Context) (Context, error) {
	if sc.UserStore == nil {
		return sc, errStoreMissing
	}
	extra := ledger.Extra{MaxLtvRatio: sc.ratioFor(sc.Give.Keyword())}
	if _, err := sc.UserStore.Upsert(sc.Give.Keyword(), sc.Give, extra); err != nil {
		return sc, fmt.Errorf("settlement: record user deposit: %w", err)
	}
	return sc, nil
}

// RecomputeDerivedMaxBorrowable re-derives the risk fields of the user store.
func RecomputeDerivedMaxBorrowable(_ context.Context, sc Context) (Context, error) {
	if sc.UserStore == nil {
		return sc, errStoreMissing
	}
	if err := sc.UserStore.RecomputeDerived(); err != nil {
		return sc, fmt.Errorf("settlement: recompute derived: %w", err)
	}
	return sc, nil
}

// DepositPipeline moves the give amount into the admin pool, pays the minted
// want amount to the user and records the deposit in both stores. gates run
// after the offer is read and before anything is minted.
func DepositPipeline(gates ...Step) Step {
	steps := []Step{
		Named(StepExtractWantAmount, ExtractWantAmount),
		Named(StepRequireGiveAmount, RequireGiveAmount),
	}
	for _, gate := range gates {
		if gate != nil {
			steps = append(steps, Named(StepValidateDeposit, gate))
		}
	}
	steps = append(steps,
		Named(StepCheckRecordable, CheckRecordable),
		Named(StepMintAgainstWant, MintAgainstWant),
		Named(StepStageAdminIncrement, StageAdminIncrement),
		Named(StepStageUserIncrement, StageUserIncrement),
		Named(StepCommitReallocation, CommitReallocation),
		Named(StepCloseUserOffer, CloseUserOffer),
		Named(StepRecordAdminDeposit, RecordAdminDeposit),
		Named(StepRecordUserDeposit, RecordUserDeposit),
		Named(StepRecomputeDerived, RecomputeDerivedMaxBorrowable),
	)
	return Chain(steps...)
}

// WithdrawalPipeline pays the want amount out of the admin pool. gate runs
// after the offer is read and before anything is minted; the stores are left
// untouched.
func WithdrawalPipeline(gate Step) Step {
	var validate Step
	if gate != nil {
		validate = Named(StepValidateWithdrawal, gate)
	}
	return Chain(
		Named(StepExtractWantAmount, ExtractWantAmount),
		Named(StepRequireEmptyGive, RequireEmptyGive),
		validate,
		Named(StepMintAgainstWant, MintAgainstWant),
		Named(StepStageUserIncrement, StageUserIncrement),
		Named(StepCommitReallocation, CommitReallocation),
		Named(StepCloseUserOffer, CloseUserOffer),
	)
}
