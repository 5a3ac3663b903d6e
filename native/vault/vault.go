package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lendsettle/core/types"
	"lendsettle/native/settlement"
)

var (
	ErrUnknownKeyword         = errors.New("vault: keyword not registered")
	ErrKeywordRegistered      = errors.New("vault: keyword already registered")
	ErrNotMintable            = errors.New("vault: keyword is not mintable")
	ErrUnknownPool            = errors.New("vault: pool not found")
	ErrPoolExited             = errors.New("vault: pool has exited")
	ErrInsufficientPayment    = errors.New("vault: payment does not cover give")
	ErrInsufficientAllocation = errors.New("vault: insufficient allocation")
)

type assetKind uint8

const (
	kindEscrowable assetKind = iota + 1
	kindMintable
)

type seat struct {
	offer      types.Offer
	allocation types.Allocation
	payout     types.Allocation
	exited     bool
}

// Vault is an in-memory pool host. It registers asset keywords, escrows
// offer payments in seats and applies reallocations atomically. All methods
// are safe for concurrent use.
type Vault struct {
	mu       sync.Mutex
	keywords map[types.Keyword]assetKind
	seats    map[settlement.PoolID]*seat
}

var _ settlement.Pools = (*Vault)(nil)

// New returns an empty vault.
func New() *Vault {
	return &Vault{
		keywords: make(map[types.Keyword]assetKind),
		seats:    make(map[settlement.PoolID]*seat),
	}
}

// RegisterMintable registers a keyword the vault may create on demand.
func (v *Vault) RegisterMintable(keyword types.Keyword) error {
	return v.register(keyword, kindMintable)
}

// RegisterEscrowable registers a keyword users pay in and the vault only
// moves.
func (v *Vault) RegisterEscrowable(keyword types.Keyword) error {
	return v.register(keyword, kindEscrowable)
}

func (v *Vault) register(keyword types.Keyword, kind assetKind) error {
	if err := keyword.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if existing, ok := v.keywords[keyword]; ok {
		if existing == kind {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrKeywordRegistered, keyword)
	}
	v.keywords[keyword] = kind
	return nil
}

// OpenSeat escrows payment for offer and returns the new pool. Payment must
// cover the give side; any surplus is returned on exit.
func (v *Vault) OpenSeat(offer types.Offer, payment types.Allocation) (settlement.PoolID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, alloc := range []types.Allocation{offer.Give, offer.Want, payment} {
		for keyword := range alloc {
			if _, ok := v.keywords[keyword]; !ok {
				return "", fmt.Errorf("%w: %s", ErrUnknownKeyword, keyword)
			}
		}
	}
	if !payment.Covers(offer.Give) {
		return "", fmt.Errorf("%w: paid %s, gives %s", ErrInsufficientPayment, payment, offer.Give)
	}
	id := settlement.PoolID(uuid.NewString())
	v.seats[id] = &seat{offer: offer.Clone(), allocation: payment.Clone()}
	return id, nil
}

// MakeEmptySeat opens a pool with no offer and no allocation.
func (v *Vault) MakeEmptySeat() settlement.PoolID {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := settlement.PoolID(uuid.NewString())
	v.seats[id] = &seat{offer: types.Offer{Give: types.Allocation{}, Want: types.Allocation{}}, allocation: types.Allocation{}}
	return id
}

// Mint creates amount and credits it to pool.
func (v *Vault) Mint(ctx context.Context, pool settlement.PoolID, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	kind, ok := v.keywords[amount.Keyword()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKeyword, amount.Keyword())
	}
	if kind != kindMintable {
		return fmt.Errorf("%w: %s", ErrNotMintable, amount.Keyword())
	}
	s, err := v.liveSeat(pool)
	if err != nil {
		return err
	}
	return s.allocation.Add(amount)
}

// Reallocate applies deltas to their pools. Debits and credits must balance
// per keyword and every pool must hold what it is debited; otherwise no pool
// changes.
func (v *Vault) Reallocate(ctx context.Context, deltas ...settlement.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := settlement.CheckBalanced(deltas); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	staged := make(map[settlement.PoolID]types.Allocation)
	for _, delta := range deltas {
		next, ok := staged[delta.Pool]
		if !ok {
			s, err := v.liveSeat(delta.Pool)
			if err != nil {
				return err
			}
			next = s.allocation.Clone()
			staged[delta.Pool] = next
		}
		for _, amount := range delta.Add {
			if _, ok := v.keywords[amount.Keyword()]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownKeyword, amount.Keyword())
			}
			if err := next.Add(amount); err != nil {
				return err
			}
		}
	}
	// Debits apply after every credit so a pool can pass along value it
	// receives in the same reallocation.
	for _, delta := range deltas {
		next := staged[delta.Pool]
		for _, amount := range delta.Sub {
			if err := next.Sub(amount); err != nil {
				return fmt.Errorf("%w: pool %s: %w", ErrInsufficientAllocation, delta.Pool, err)
			}
		}
	}
	for pool, allocation := range staged {
		v.seats[pool].allocation = allocation
	}
	return nil
}

// Exit pays the pool's allocation out and closes it. Exiting twice is a
// no-op.
func (v *Vault) Exit(_ context.Context, pool settlement.PoolID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.seats[pool]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	if s.exited {
		return nil
	}
	s.payout = s.allocation.Clone()
	s.allocation = types.Allocation{}
	s.exited = true
	return nil
}

// OfferAmounts returns the give and want sides of the pool's offer.
func (v *Vault) OfferAmounts(pool settlement.PoolID) (types.Offer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.seats[pool]
	if !ok {
		return types.Offer{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	return s.offer.Clone(), nil
}

// Allocation returns what the pool currently holds.
func (v *Vault) Allocation(pool settlement.PoolID) (types.Allocation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.seats[pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	return s.allocation.Clone(), nil
}

// Payout returns what the pool paid out on exit. It is empty until the pool
// exits.
func (v *Vault) Payout(pool settlement.PoolID) (types.Allocation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.seats[pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	return s.payout.Clone(), nil
}

// HasExited reports whether the pool has exited.
func (v *Vault) HasExited(pool settlement.PoolID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.seats[pool]
	return ok && s.exited
}

func (v *Vault) liveSeat(pool settlement.PoolID) (*seat, error) {
	s, ok := v.seats[pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	if s.exited {
		return nil, fmt.Errorf("%w: %s", ErrPoolExited, pool)
	}
	return s, nil
}
