package journal

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendsettle/core/events"
	"lendsettle/core/types"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return j
}

func TestJournalRecordsOutcomes(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	j.Emit(events.SettlementDeposit{
		AccountID: "acct-1",
		Operation: events.OperationOpenAccount,
		Amount:    types.AmountOf("Osmos", 100),
		Receipt:   types.AmountOf("LiOsmos", 100),
	})
	j.Emit(events.SettlementRejected{
		AccountID: "acct-1",
		Operation: events.OperationBorrow,
		Amount:    types.AmountOf("USD", 70),
		Reason:    "insufficient collateral",
		UIMessage: "error handling borrow offer",
	})
	j.Emit(events.SettlementBorrow{
		AccountID:     "acct-1",
		Amount:        types.AmountOf("USD", 39),
		MaxBorrowable: types.AmountOf("USD", 40),
	})
	j.Emit(events.SettlementDeposit{AccountID: "acct-2", Operation: events.OperationOpenAccount, Amount: types.AmountOf("Atoms", 1)})

	entries, err := j.List(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, events.TypeSettlementDeposit, entries[0].EventType)
	require.Equal(t, StatusSettled, entries[0].Status)
	require.Equal(t, "Osmos", entries[0].Keyword)
	require.Equal(t, "100", entries[0].Quantity)

	require.Equal(t, StatusRejected, entries[1].Status)
	require.Equal(t, events.OperationBorrow, entries[1].Operation)
	require.Equal(t, "error handling borrow offer", entries[1].UIMessage)
	require.Equal(t, "insufficient collateral", entries[1].Error)

	require.Equal(t, events.TypeSettlementBorrow, entries[2].EventType)
	require.Equal(t, "39", entries[2].Quantity)

	rejected, err := j.CountByStatus(ctx, StatusRejected)
	require.NoError(t, err)
	require.EqualValues(t, 1, rejected)

	settled, err := j.CountByStatus(ctx, StatusSettled)
	require.NoError(t, err)
	require.EqualValues(t, 3, settled)
}

func TestJournalEmitFanOut(t *testing.T) {
	first := newTestJournal(t)
	second := newTestJournal(t)
	emitter := events.MultiEmitter{first, nil, second}
	emitter.Emit(events.SettlementDeposit{AccountID: "acct", Operation: events.OperationAddCollateral, Amount: types.AmountOf("Osmos", 5)})

	for _, j := range []*Journal{first, second} {
		entries, err := j.List(context.Background(), "acct")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, events.OperationAddCollateral, entries[0].Operation)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}

func TestJournalKeepsAppendOrderWithinOneTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return frozen }

	for i := uint64(1); i <= 5; i++ {
		j.Emit(events.SettlementDeposit{AccountID: "acct", Operation: events.OperationAddCollateral, Amount: types.AmountOf("Osmos", i)})
	}
	require.NoError(t, j.Close())

	reopened, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	reopened.now = func() time.Time { return frozen }
	reopened.Emit(events.SettlementDeposit{AccountID: "acct", Operation: events.OperationAddCollateral, Amount: types.AmountOf("Osmos", 6)})

	entries, err := reopened.List(context.Background(), "acct")
	require.NoError(t, err)
	require.Len(t, entries, 6)
	for i, entry := range entries {
		require.EqualValues(t, i+1, entry.Seq)
		require.Equal(t, strconv.Itoa(i+1), entry.Quantity)
	}
}
