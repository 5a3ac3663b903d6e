package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendsettle/core/events"
)

// Drivers understood by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Entry statuses.
const (
	StatusSettled  = "SETTLED"
	StatusRejected = "REJECTED"
)

// Entry is one settlement outcome as persisted in the journal.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq       int64     `gorm:"uniqueIndex;not null"`
	AccountID string    `gorm:"size:64;index"`
	EventType string    `gorm:"size:64;index"`
	Operation string    `gorm:"size:32"`
	Status    string    `gorm:"size:16;index"`
	Keyword   string    `gorm:"size:64"`
	Quantity  string    `gorm:"size:80"`
	Error     string
	UIMessage string
	CreatedAt time.Time
}

// AutoMigrate creates the journal tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal appends settlement events to a SQL store. It implements
// events.Emitter so it can be attached directly to the lending engine.
// Entries are numbered in append order; a journal has a single writer.
type Journal struct {
	mu     sync.Mutex
	seq    int64
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the journal database and migrates it. dsn is a file path
// for sqlite and a connection string for postgres.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection, migrating the schema first.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last int64
	if err := db.Model(&Entry{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("journal: read sequence: %w", err)
	}
	return &Journal{seq: last, db: db, logger: slog.Default(), now: time.Now}, nil
}

// SetLogger overrides the logger used to report write failures.
func (j *Journal) SetLogger(l *slog.Logger) {
	if j != nil && l != nil {
		j.logger = l
	}
}

// Emit implements events.Emitter. Write failures are logged; the settlement
// they describe has already happened and is not rolled back.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed",
			slog.String("event", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append stores a single event.
func (j *Journal) Append(ctx context.Context, evt events.Event) error {
	entry, err := j.entryFor(evt)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.Seq = j.seq + 1
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}
	j.seq = entry.Seq
	return nil
}

func (j *Journal) entryFor(evt events.Event) (Entry, error) {
	payload := evt.Event()
	if payload == nil {
		return Entry{}, fmt.Errorf("journal: event %s has no payload", evt.EventType())
	}
	status := StatusSettled
	if payload.Type == events.TypeSettlementRejected {
		status = StatusRejected
	}
	return Entry{
		ID:        uuid.New(),
		AccountID: payload.Attribute("accountId"),
		EventType: payload.Type,
		Operation: payload.Attribute("operation"),
		Status:    status,
		Keyword:   payload.Attribute("keyword"),
		Quantity:  payload.Attribute("quantity"),
		Error:     payload.Attribute("error"),
		UIMessage: payload.Attribute("uiMessage"),
		CreatedAt: j.now().UTC(),
	}, nil
}

// List returns an account's entries in append order.
func (j *Journal) List(ctx context.Context, accountID string) ([]Entry, error) {
	var entries []Entry
	err := j.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("seq asc").
		Find(&entries).Error
	return entries, err
}

// CountByStatus reports how many entries carry the given status.
func (j *Journal) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := j.db.WithContext(ctx).Model(&Entry{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
