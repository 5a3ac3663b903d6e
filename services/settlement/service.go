// Package settlement hosts the lending engine behind a serialised API. It
// owns the vault seats for each request, keeps the live account handles
// and journals every outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lendsettle/core/types"
	"lendsettle/native/lending"
	nativesettlement "lendsettle/native/settlement"
	"lendsettle/native/vault"
	"lendsettle/observability/logging"
	"lendsettle/services/settlement/journal"
)

var errAccountRequired = errors.New("settlement service: account id required")

// Receipt describes what a caller got back from one request. Message is
// the user-facing completion or failure text and Payout is what the seat
// returned on exit, which for a rejected request is the refunded payment.
type Receipt struct {
	AccountID string
	Pool      nativesettlement.PoolID
	Payout    types.Allocation
	Message   string
}

// Service serialises access to a lending engine. The engine holds no locks
// of its own; every request runs under mu.
type Service struct {
	mu       sync.Mutex
	vault    *vault.Vault
	engine   *lending.Engine
	journal  *journal.Journal
	accounts map[string]*lending.Account
	logger   *slog.Logger
}

// New wires the service. journal may be nil when outcomes need not be
// persisted.
func New(v *vault.Vault, engine *lending.Engine, j *journal.Journal) (*Service, error) {
	if v == nil || engine == nil {
		return nil, errors.New("settlement service: vault and engine required")
	}
	return &Service{
		vault:    v,
		engine:   engine,
		journal:  j,
		accounts: make(map[string]*lending.Account),
		logger:   slog.Default(),
	}, nil
}

// SetLogger overrides the service logger.
func (s *Service) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// OpenAccount escrows give, asks for want in return and opens an account
// holding the deposit.
func (s *Service) OpenAccount(ctx context.Context, give, want types.Amount) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.vault.OpenSeat(depositOffer(give, want), single(give))
	if err != nil {
		return Receipt{}, err
	}
	account, err := s.engine.OpenAccount(ctx, pool)
	if err != nil {
		return s.refund(ctx, "", pool, err)
	}
	s.accounts[account.ID()] = account
	return s.settled(account.ID(), pool)
}

// AddCollateral tops up an existing account.
func (s *Service) AddCollateral(ctx context.Context, accountID string, give, want types.Amount) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.account(accountID)
	if err != nil {
		return Receipt{}, err
	}
	pool, err := s.vault.OpenSeat(depositOffer(give, want), single(give))
	if err != nil {
		return Receipt{}, err
	}
	if _, err := account.AddCollateralInvitation()(ctx, pool); err != nil {
		return s.refund(ctx, accountID, pool, err)
	}
	return s.settled(accountID, pool)
}

// Borrow pays want against the account's collateral.
func (s *Service) Borrow(ctx context.Context, accountID string, want types.Amount) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.account(accountID)
	if err != nil {
		return Receipt{}, err
	}
	offer := types.Offer{Give: types.Allocation{}, Want: single(want)}
	pool, err := s.vault.OpenSeat(offer, nil)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := account.BorrowInvitation()(ctx, pool); err != nil {
		return s.refund(ctx, accountID, pool, err)
	}
	return s.settled(accountID, pool)
}

// Account returns the live handle for accountID, reloading it from the
// ledger after a restart.
func (s *Service) Account(accountID string) (*lending.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(accountID)
}

// History returns the journal entries of an account.
func (s *Service) History(ctx context.Context, accountID string) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.List(ctx, accountID)
}

func (s *Service) account(accountID string) (*lending.Account, error) {
	if accountID == "" {
		return nil, errAccountRequired
	}
	if account, ok := s.accounts[accountID]; ok {
		return account, nil
	}
	account, err := s.engine.LoadAccount(accountID)
	if err != nil {
		return nil, err
	}
	s.accounts[accountID] = account
	return account, nil
}

func (s *Service) settled(accountID string, pool nativesettlement.PoolID) (Receipt, error) {
	payout, err := s.vault.Payout(pool)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{AccountID: accountID, Pool: pool, Payout: payout, Message: lending.OfferCompletedMessage}, nil
}

// refund exits a seat whose offer failed so its escrowed payment goes back
// to the caller.
func (s *Service) refund(ctx context.Context, accountID string, pool nativesettlement.PoolID, cause error) (Receipt, error) {
	receipt := Receipt{AccountID: accountID, Pool: pool, Message: cause.Error()}
	var offerErr *lending.OfferError
	if errors.As(cause, &offerErr) {
		receipt.Message = offerErr.UIMessage
	}
	if err := s.vault.Exit(ctx, pool); err != nil {
		s.logger.Error("refund exit failed", logging.MaskField("pool_id", string(pool)), slog.Any("error", err))
		return receipt, errors.Join(cause, fmt.Errorf("refund: %w", err))
	}
	payout, err := s.vault.Payout(pool)
	if err != nil {
		return receipt, errors.Join(cause, err)
	}
	receipt.Payout = payout
	return receipt, cause
}

func depositOffer(give, want types.Amount) types.Offer {
	return types.Offer{Give: single(give), Want: single(want)}
}

func single(amount types.Amount) types.Allocation {
	return types.Allocation{amount.Keyword(): amount}
}
