package settlement

import (
	"context"
	"errors"
	"slices"

	"lendsettle/core/types"
	"lendsettle/native/ledger"
)

var (
	// ErrMalformedOffer is returned when an offer side carries zero or several
	// keywords where exactly one is expected.
	ErrMalformedOffer = errors.New("settlement: malformed offer")
	// ErrMintFailure wraps a rejection from the mint primitive.
	ErrMintFailure = errors.New("settlement: mint failed")
	// ErrImbalancedTransfer is returned when staged debits and credits differ
	// for any keyword.
	ErrImbalancedTransfer = errors.New("settlement: imbalanced transfer")

	errPoolsMissing = errors.New("settlement: pool primitives not configured")
	errStoreMissing = errors.New("settlement: balance store not configured")
)

// PoolID identifies a seat-like holding of assets managed by the host.
type PoolID string

// Delta is a staged change to one pool. Add is credited and Sub debited when
// the reallocation commits.
type Delta struct {
	Pool PoolID
	Add  types.Allocation
	Sub  types.Allocation
}

// Pools is the set of primitives the host provides for moving value.
type Pools interface {
	// Mint credits amount to pool. Unknown keywords are rejected.
	Mint(ctx context.Context, pool PoolID, amount types.Amount) error
	// Reallocate applies every delta or none of them.
	Reallocate(ctx context.Context, deltas ...Delta) error
	// Exit settles the pool's offer. Repeated calls have no further effect.
	Exit(ctx context.Context, pool PoolID) error
	OfferAmounts(pool PoolID) (types.Offer, error)
}

// Context is the value threaded through a pipeline. Steps never mutate the
// Context they receive; they return an updated copy.
type Context struct {
	AdminPool  PoolID
	UserPool   PoolID
	AdminStore *ledger.Store
	UserStore  *ledger.Store
	Pools      Pools
	// Ratios holds the configured MaxLtvRatio by collateral keyword.
	Ratios map[types.Keyword]types.Ratio
	Hook   Hook

	Offer   types.Offer
	Want    types.Amount
	Give    types.Amount
	HasGive bool
	Deltas  []Delta
}

func (c Context) withDelta(delta Delta) Context {
	c.Deltas = append(slices.Clone(c.Deltas), delta)
	return c
}

func (c Context) ratioFor(keyword types.Keyword) *types.Ratio {
	ratio, ok := c.Ratios[keyword]
	if !ok {
		return nil
	}
	return &ratio
}
