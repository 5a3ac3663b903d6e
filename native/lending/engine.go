package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendsettle/core/events"
	"lendsettle/core/types"
	nativecommon "lendsettle/native/common"
	"lendsettle/native/ledger"
	"lendsettle/native/settlement"
	"lendsettle/observability"
	"lendsettle/observability/logging"
	"lendsettle/storage"
)

var (
	errNilEngine      = errors.New("lending engine: not initialised")
	errNilPools       = errors.New("lending engine: pool primitives not configured")
	errNilAdminPool   = errors.New("lending engine: admin pool identifier not configured")
	errNilAccount     = errors.New("lending engine: account required")
	errForeignAccount = errors.New("lending engine: account belongs to another engine")

	// ErrUnknownAccount is returned by LoadAccount for ids with no records.
	ErrUnknownAccount = errors.New("lending engine: unknown account")
)

const moduleName = "lending"

// adminOwner scopes the admin store. User stores are scoped by uuid.
const adminOwner = "admin"

// Engine settles deposits and borrows for every market in its Config. It
// holds no locks: the admin store and admin pool are shared by all accounts,
// so the host must serialise calls.
type Engine struct {
	pools      settlement.Pools
	adminPool  settlement.PoolID
	adminStore *ledger.Store
	db         storage.Database
	cfg        Config
	ratios     map[types.Keyword]types.Ratio
	receipts   map[types.Keyword]types.Keyword

	logger  *slog.Logger
	hook    settlement.Hook
	emitter events.Emitter
	pauses  nativecommon.PauseView
	tracer  trace.Tracer
}

// NewEngine validates cfg and opens the admin store. db may be nil, in which
// case every store lives only in memory.
func NewEngine(pools settlement.Pools, adminPool settlement.PoolID, db storage.Database, cfg Config) (*Engine, error) {
	if pools == nil {
		return nil, errNilPools
	}
	if adminPool == "" {
		return nil, errNilAdminPool
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ratios, err := cfg.Ratios()
	if err != nil {
		return nil, err
	}
	receipts := make(map[types.Keyword]types.Keyword, len(cfg.Markets))
	for _, market := range cfg.Markets {
		if market.Receipt != "" {
			receipts[market.Collateral] = market.Receipt
		}
	}
	adminStore, err := ledger.Open(db, adminOwner)
	if err != nil {
		return nil, fmt.Errorf("lending engine: open admin store: %w", err)
	}
	return &Engine{
		pools:      pools,
		adminPool:  adminPool,
		adminStore: adminStore,
		db:         db,
		cfg:        cfg,
		ratios:     ratios,
		receipts:   receipts,
		logger:     slog.Default(),
		emitter:    events.NoopEmitter{},
		tracer:     otel.Tracer("lendsettle/lending"),
	}, nil
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetHook installs an additional pipeline observer.
func (e *Engine) SetHook(hook settlement.Hook) {
	if e == nil {
		return
	}
	e.hook = hook
}

// SetEmitter wires the sink receiving settlement events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Config returns the normalised configuration.
func (e *Engine) Config() Config { return e.cfg }

// AdminStore exposes the ledger of everything deposited across accounts.
func (e *Engine) AdminStore() *ledger.Store {
	if e == nil {
		return nil
	}
	return e.adminStore
}

// OpenAccount creates an account with a fresh store and settles the deposit
// offer held by pool into it.
func (e *Engine) OpenAccount(ctx context.Context, pool settlement.PoolID) (*Account, error) {
	if e == nil {
		return nil, errNilEngine
	}
	owner := uuid.NewString()
	store, err := ledger.Open(e.db, owner)
	if err != nil {
		return nil, &OfferError{Err: err, UIMessage: e.cfg.Messages.Deposit}
	}
	account := &Account{id: owner, store: store, engine: e}
	if err := e.deposit(ctx, events.OperationOpenAccount, account, pool); err != nil {
		return nil, err
	}
	return account, nil
}

// AddCollateral settles another deposit into an existing account.
func (e *Engine) AddCollateral(ctx context.Context, account *Account, pool settlement.PoolID) (*Account, error) {
	if err := e.checkAccount(account); err != nil {
		return nil, &OfferError{Err: err, UIMessage: e.depositMessage()}
	}
	if err := e.deposit(ctx, events.OperationAddCollateral, account, pool); err != nil {
		return nil, err
	}
	return account, nil
}

// LoadAccount reopens a persisted account by id.
func (e *Engine) LoadAccount(id string) (*Account, error) {
	if e == nil {
		return nil, errNilEngine
	}
	// Owners are canonical uuids; anything else, the admin owner included,
	// is not an account.
	if parsed, err := uuid.Parse(id); err != nil || parsed.String() != id {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAccount, id)
	}
	store, err := ledger.Open(e.db, id)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return &Account{id: id, store: store, engine: e}, nil
}

func (e *Engine) deposit(ctx context.Context, operation string, account *Account, pool settlement.PoolID) error {
	ctx, span := e.tracer.Start(ctx, "lending."+operation,
		trace.WithAttributes(
			attribute.String("account.id", account.id),
			attribute.String("pool.id", string(pool)),
		))
	defer span.End()
	start := time.Now()

	var out settlement.Context
	err := nativecommon.Guard(e.pauses, moduleName)
	if err == nil {
		out, err = settlement.DepositPipeline(e.checkReceipt)(ctx, e.settlementContext(account, pool))
	}
	observability.Settlement().Observe(operation, err, time.Since(start))
	if err != nil {
		return e.reject(span, operation, account.id, e.offeredAmount(pool, true), err, e.cfg.Messages.Deposit)
	}

	span.SetAttributes(
		attribute.String("collateral.keyword", out.Give.Keyword().String()),
		attribute.String("collateral.quantity", out.Give.Dec()),
	)
	span.SetStatus(codes.Ok, OfferCompletedMessage)
	e.logger.Info("collateral deposited",
		slog.String("operation", operation),
		logging.MaskField("account_id", account.id),
		slog.String("keyword", out.Give.Keyword().String()),
		slog.String("quantity", out.Give.Dec()))
	e.emit(events.SettlementDeposit{AccountID: account.id, Operation: operation, Amount: out.Give, Receipt: out.Want})
	return nil
}

// Borrow pays the want amount of pool to the account holder once the
// account's collateral supports it. Nothing is minted or moved when the
// request is rejected. The account store is not changed.
func (e *Engine) Borrow(ctx context.Context, account *Account, pool settlement.PoolID) (*Account, error) {
	if err := e.checkAccount(account); err != nil {
		return nil, &OfferError{Err: err, UIMessage: e.borrowMessage()}
	}
	ctx, span := e.tracer.Start(ctx, "lending."+events.OperationBorrow,
		trace.WithAttributes(
			attribute.String("account.id", account.id),
			attribute.String("pool.id", string(pool)),
		))
	defer span.End()
	start := time.Now()

	attempt := newBorrowAttempt(func(phase BorrowPhase) {
		span.AddEvent("borrow." + phase.String())
		e.logger.Debug("borrow phase", slog.String("phase", phase.String()), logging.MaskField("account_id", account.id))
	})
	fail := func(err error) (*Account, error) {
		_ = attempt.advance(BorrowRejected)
		span.SetAttributes(attribute.String("borrow.phase", attempt.phase.String()))
		observability.Settlement().Observe(events.OperationBorrow, err, time.Since(start))
		observability.Settlement().RecordBorrowRejection(rejectionReason(err))
		return nil, e.reject(span, events.OperationBorrow, account.id, e.offeredAmount(pool, false), err, e.cfg.Messages.Borrow)
	}

	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return fail(err)
	}
	if err := attempt.advance(BorrowValidating); err != nil {
		return fail(err)
	}

	sc := e.settlementContext(account, pool)
	phaseHook := func(step string, _ settlement.Context, err error) {
		if step != settlement.StepValidateWithdrawal || err != nil {
			return
		}
		_ = attempt.advance(BorrowAccepted)
		_ = attempt.advance(BorrowSettling)
	}
	sc.Hook = settlement.JoinHooks(sc.Hook, phaseHook)

	out, err := settlement.WithdrawalPipeline(ValidateBorrow(e.cfg.ReferenceKeyword))(ctx, sc)
	if err != nil {
		return fail(err)
	}
	if err := attempt.advance(BorrowCommitted); err != nil {
		return fail(err)
	}
	observability.Settlement().Observe(events.OperationBorrow, nil, time.Since(start))

	limit, err := account.MaxBorrowable()
	if err != nil {
		limit = types.AmountOf(e.cfg.ReferenceKeyword, 0)
	}
	span.SetAttributes(
		attribute.String("borrow.phase", attempt.phase.String()),
		attribute.String("borrow.quantity", out.Want.Dec()),
	)
	span.SetStatus(codes.Ok, OfferCompletedMessage)
	e.logger.Info("borrow settled",
		logging.MaskField("account_id", account.id),
		slog.String("keyword", out.Want.Keyword().String()),
		slog.String("quantity", out.Want.Dec()),
		slog.String("max_borrowable", limit.Dec()))
	e.emit(events.SettlementBorrow{AccountID: account.id, Amount: out.Want, MaxBorrowable: limit})
	return account, nil
}

// checkReceipt rejects deposits of a configured market that ask for anything
// other than the market's receipt keyword.
func (e *Engine) checkReceipt(_ context.Context, sc settlement.Context) (settlement.Context, error) {
	receipt, ok := e.receipts[sc.Give.Keyword()]
	if !ok || receipt == sc.Want.Keyword() {
		return sc, nil
	}
	return sc, fmt.Errorf("%w: %s deposits receive %s, not %s", settlement.ErrMalformedOffer, sc.Give.Keyword(), receipt, sc.Want.Keyword())
}

func (e *Engine) settlementContext(account *Account, pool settlement.PoolID) settlement.Context {
	return settlement.Context{
		AdminPool:  e.adminPool,
		UserPool:   pool,
		AdminStore: e.adminStore,
		UserStore:  account.store,
		Pools:      e.pools,
		Ratios:     e.ratios,
		Hook:       settlement.JoinHooks(recordStepFailure, settlement.LogHook(e.logger), e.hook),
	}
}

func recordStepFailure(step string, _ settlement.Context, err error) {
	if err != nil {
		observability.Settlement().RecordStepFailure(step)
	}
}

func (e *Engine) checkAccount(account *Account) error {
	if e == nil {
		return errNilEngine
	}
	if account == nil || account.store == nil {
		return errNilAccount
	}
	if account.engine != e {
		return errForeignAccount
	}
	return nil
}

func (e *Engine) reject(span trace.Span, operation, accountID string, amount types.Amount, err error, uiMessage string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Warn("settlement offer rejected",
		slog.String("operation", operation),
		logging.MaskField("account_id", accountID),
		slog.Any("error", err))
	e.emit(events.SettlementRejected{
		AccountID: accountID,
		Operation: operation,
		Amount:    amount,
		Reason:    err.Error(),
		UIMessage: uiMessage,
	})
	return &OfferError{Err: err, UIMessage: uiMessage}
}

// offeredAmount reads the give or want side of pool for diagnostics. It
// returns the zero amount when the offer cannot be read.
func (e *Engine) offeredAmount(pool settlement.PoolID, give bool) types.Amount {
	offer, err := e.pools.OfferAmounts(pool)
	if err != nil {
		return types.Amount{}
	}
	side := offer.Want
	if give {
		side = offer.Give
	}
	amount, ok := side.Single()
	if !ok {
		return types.Amount{}
	}
	return amount
}

func (e *Engine) emit(evt events.Event) {
	e.emitter.Emit(evt)
	observability.Events().RecordEvent(evt.EventType(), evt.Event().Attribute("keyword"))
}

func (e *Engine) depositMessage() string {
	if e == nil {
		return DefaultDepositMessage
	}
	return e.cfg.Messages.Deposit
}

func (e *Engine) borrowMessage() string {
	if e == nil {
		return DefaultBorrowMessage
	}
	return e.cfg.Messages.Borrow
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, types.ErrAssetMismatch):
		return "asset_mismatch"
	case errors.Is(err, settlement.ErrMalformedOffer):
		return "malformed_offer"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, settlement.ErrMintFailure):
		return "mint_failure"
	default:
		return "settlement_failure"
	}
}
