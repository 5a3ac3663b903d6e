package vault

import (
	"context"
	"errors"
	"testing"

	"lendsettle/core/types"
	"lendsettle/native/settlement"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v := New()
	for _, kw := range []types.Keyword{"Osmos", "Atoms"} {
		if err := v.RegisterEscrowable(kw); err != nil {
			t.Fatalf("register %s: %v", kw, err)
		}
	}
	for _, kw := range []types.Keyword{"LiOsmos", "USD"} {
		if err := v.RegisterMintable(kw); err != nil {
			t.Fatalf("register %s: %v", kw, err)
		}
	}
	return v
}

func depositOffer(give, want types.Amount) types.Offer {
	return types.Offer{
		Give: types.Allocation{give.Keyword(): give},
		Want: types.Allocation{want.Keyword(): want},
	}
}

func TestRegisterConflictingKind(t *testing.T) {
	v := newTestVault(t)
	if err := v.RegisterMintable("Osmos"); !errors.Is(err, ErrKeywordRegistered) {
		t.Fatalf("expected ErrKeywordRegistered, got %v", err)
	}
	if err := v.RegisterEscrowable("Osmos"); err != nil {
		t.Fatalf("re-registering same kind should be a no-op: %v", err)
	}
}

func TestOpenSeatRequiresCoveringPayment(t *testing.T) {
	v := newTestVault(t)
	offer := depositOffer(types.AmountOf("Osmos", 100), types.AmountOf("LiOsmos", 100))

	if _, err := v.OpenSeat(offer, types.Allocation{"Osmos": types.AmountOf("Osmos", 99)}); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if _, err := v.OpenSeat(depositOffer(types.AmountOf("Gold", 1), types.AmountOf("LiOsmos", 1)), nil); !errors.Is(err, ErrUnknownKeyword) {
		t.Fatalf("expected ErrUnknownKeyword, got %v", err)
	}

	pool, err := v.OpenSeat(offer, offer.Give)
	if err != nil {
		t.Fatalf("open seat: %v", err)
	}
	got, err := v.OfferAmounts(pool)
	if err != nil {
		t.Fatalf("offer amounts: %v", err)
	}
	if !got.Give.Equal(offer.Give) || !got.Want.Equal(offer.Want) {
		t.Fatalf("unexpected offer %s / %s", got.Give, got.Want)
	}
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	admin := v.MakeEmptySeat()

	if err := v.Mint(ctx, admin, types.AmountOf("Gold", 1)); !errors.Is(err, ErrUnknownKeyword) {
		t.Fatalf("expected ErrUnknownKeyword, got %v", err)
	}
	if err := v.Mint(ctx, admin, types.AmountOf("Osmos", 1)); !errors.Is(err, ErrNotMintable) {
		t.Fatalf("expected ErrNotMintable, got %v", err)
	}
	if err := v.Mint(ctx, "missing", types.AmountOf("USD", 1)); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
	if err := v.Mint(ctx, admin, types.AmountOf("USD", 39)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	alloc, _ := v.Allocation(admin)
	if alloc.Get("USD") != types.AmountOf("USD", 39) {
		t.Fatalf("unexpected allocation %s", alloc)
	}
}

func TestReallocateSwapsAtomically(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	admin := v.MakeEmptySeat()
	offer := depositOffer(types.AmountOf("Osmos", 100), types.AmountOf("LiOsmos", 100))
	user, err := v.OpenSeat(offer, offer.Give)
	if err != nil {
		t.Fatalf("open seat: %v", err)
	}
	if err := v.Mint(ctx, admin, types.AmountOf("LiOsmos", 100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err = v.Reallocate(ctx,
		settlement.Delta{Pool: user, Sub: types.Allocation{"Osmos": types.AmountOf("Osmos", 100)}},
		settlement.Delta{Pool: admin, Add: types.Allocation{"Osmos": types.AmountOf("Osmos", 100)}},
		settlement.Delta{Pool: admin, Sub: types.Allocation{"LiOsmos": types.AmountOf("LiOsmos", 100)}},
		settlement.Delta{Pool: user, Add: types.Allocation{"LiOsmos": types.AmountOf("LiOsmos", 100)}},
	)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	adminAlloc, _ := v.Allocation(admin)
	userAlloc, _ := v.Allocation(user)
	if !adminAlloc.Equal(types.Allocation{"Osmos": types.AmountOf("Osmos", 100)}) {
		t.Fatalf("admin allocation %s", adminAlloc)
	}
	if !userAlloc.Equal(types.Allocation{"LiOsmos": types.AmountOf("LiOsmos", 100)}) {
		t.Fatalf("user allocation %s", userAlloc)
	}
}

func TestReallocateRejectsImbalance(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	admin := v.MakeEmptySeat()
	if err := v.Mint(ctx, admin, types.AmountOf("USD", 10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	user := v.MakeEmptySeat()

	err := v.Reallocate(ctx,
		settlement.Delta{Pool: admin, Sub: types.Allocation{"USD": types.AmountOf("USD", 10)}},
		settlement.Delta{Pool: user, Add: types.Allocation{"USD": types.AmountOf("USD", 9)}},
	)
	if !errors.Is(err, settlement.ErrImbalancedTransfer) {
		t.Fatalf("expected ErrImbalancedTransfer, got %v", err)
	}
	adminAlloc, _ := v.Allocation(admin)
	if adminAlloc.Get("USD") != types.AmountOf("USD", 10) {
		t.Fatalf("admin allocation changed: %s", adminAlloc)
	}
}

func TestReallocateAllOrNothing(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	admin := v.MakeEmptySeat()
	user := v.MakeEmptySeat()
	if err := v.Mint(ctx, admin, types.AmountOf("USD", 5)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// The first pair is fine; the second overdraws the user pool.
	err := v.Reallocate(ctx,
		settlement.Delta{Pool: admin, Sub: types.Allocation{"USD": types.AmountOf("USD", 5)}},
		settlement.Delta{Pool: user, Add: types.Allocation{"USD": types.AmountOf("USD", 5)}},
		settlement.Delta{Pool: user, Sub: types.Allocation{"LiOsmos": types.AmountOf("LiOsmos", 1)}},
		settlement.Delta{Pool: admin, Add: types.Allocation{"LiOsmos": types.AmountOf("LiOsmos", 1)}},
	)
	if !errors.Is(err, ErrInsufficientAllocation) {
		t.Fatalf("expected ErrInsufficientAllocation, got %v", err)
	}
	adminAlloc, _ := v.Allocation(admin)
	userAlloc, _ := v.Allocation(user)
	if !adminAlloc.Equal(types.Allocation{"USD": types.AmountOf("USD", 5)}) || len(userAlloc) != 0 {
		t.Fatalf("partial reallocation observed: admin %s user %s", adminAlloc, userAlloc)
	}
}

func TestExitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	user := v.MakeEmptySeat()
	if err := v.Mint(ctx, user, types.AmountOf("USD", 39)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := v.Exit(ctx, user); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := v.Exit(ctx, user); err != nil {
		t.Fatalf("second exit: %v", err)
	}
	if !v.HasExited(user) {
		t.Fatalf("pool should report exited")
	}
	payout, _ := v.Payout(user)
	if !payout.Equal(types.Allocation{"USD": types.AmountOf("USD", 39)}) {
		t.Fatalf("payout credited more than once: %s", payout)
	}
	if err := v.Mint(ctx, user, types.AmountOf("USD", 1)); !errors.Is(err, ErrPoolExited) {
		t.Fatalf("expected ErrPoolExited, got %v", err)
	}
	if err := v.Exit(ctx, "missing"); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}
