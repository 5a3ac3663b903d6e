package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"lendsettle/core/types"
	"lendsettle/storage"
)

var (
	errNilStore     = errors.New("ledger: store not initialised")
	errOwnerMissing = errors.New("ledger: owner required")
)

var recordPrefix = []byte("ledger/")

// Record is the balance held for one asset keyword. MaxBorrowable is derived
// from Quantity and MaxLtvRatio and is never set directly.
type Record struct {
	Keyword       types.Keyword
	Quantity      types.Amount
	MaxLtvRatio   *types.Ratio
	MaxBorrowable *types.Amount
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := Record{Keyword: r.Keyword, Quantity: r.Quantity}
	if r.MaxLtvRatio != nil {
		ratio := *r.MaxLtvRatio
		clone.MaxLtvRatio = &ratio
	}
	if r.MaxBorrowable != nil {
		value := *r.MaxBorrowable
		clone.MaxBorrowable = &value
	}
	return clone
}

// Extra carries the optional fields refreshed on every upsert. A nil field
// keeps the stored value.
type Extra struct {
	MaxLtvRatio *types.Ratio
}

// Store is the balance ledger of a single owner. It is not safe for
// concurrent use; callers serialise access per owner.
type Store struct {
	owner   string
	db      storage.Database
	records map[types.Keyword]Record
}

// New returns an empty store that lives only in memory.
func New(owner string) *Store {
	return &Store{owner: owner, records: make(map[types.Keyword]Record)}
}

// Open loads the owner's records from db. Unknown owners start empty.
func Open(db storage.Database, owner string) (*Store, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errOwnerMissing
	}
	s := New(owner)
	if db == nil {
		return s, nil
	}
	s.db = db
	keys, err := db.Keys(ownerPrefix(owner))
	if err != nil {
		return nil, fmt.Errorf("ledger: list %s: %w", owner, err)
	}
	for _, key := range keys {
		raw, err := db.Get(key)
		if err != nil {
			return nil, fmt.Errorf("ledger: load %s: %w", key, err)
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("ledger: decode %s: %w", key, err)
		}
		if err := derive(&record); err != nil {
			return nil, err
		}
		s.records[record.Keyword] = record
	}
	return s, nil
}

// Owner returns the identifier the store is scoped to.
func (s *Store) Owner() string {
	if s == nil {
		return ""
	}
	return s.owner
}

// Len returns the number of tracked keywords.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Upsert initialises the keyword with amount or accumulates amount onto the
// existing quantity, refreshing extra fields and derived values.
func (s *Store) Upsert(keyword types.Keyword, amount types.Amount, extra Extra) (Record, error) {
	next, err := s.prepare(keyword, amount, extra)
	if err != nil {
		return Record{}, err
	}
	batch, err := s.stage(next)
	if err != nil {
		return Record{}, err
	}
	if err := s.commit(batch); err != nil {
		return Record{}, err
	}
	s.records[keyword] = next
	return next.Clone(), nil
}

// CheckUpsert reports the error Upsert would return for the same arguments,
// short of persistence failures. The store is not changed.
func (s *Store) CheckUpsert(keyword types.Keyword, amount types.Amount, extra Extra) error {
	_, err := s.prepare(keyword, amount, extra)
	return err
}

func (s *Store) prepare(keyword types.Keyword, amount types.Amount, extra Extra) (Record, error) {
	if s == nil || s.records == nil {
		return Record{}, errNilStore
	}
	if err := keyword.Validate(); err != nil {
		return Record{}, err
	}
	if amount.Keyword() != keyword {
		return Record{}, fmt.Errorf("%w: upsert %s with %s", types.ErrAssetMismatch, keyword, amount.Keyword())
	}

	next := Record{Keyword: keyword, Quantity: amount}
	if existing, ok := s.records[keyword]; ok {
		next = existing.Clone()
		quantity, err := types.Add(existing.Quantity, amount)
		if err != nil {
			return Record{}, err
		}
		next.Quantity = quantity
	}
	if extra.MaxLtvRatio != nil {
		ratio := *extra.MaxLtvRatio
		next.MaxLtvRatio = &ratio
	}
	if err := derive(&next); err != nil {
		return Record{}, err
	}
	return next, nil
}

// Get returns the record for keyword. ok is false when the keyword has never
// been recorded.
func (s *Store) Get(keyword types.Keyword) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	record, ok := s.records[keyword]
	if !ok {
		return Record{}, false
	}
	return record.Clone(), true
}

// Snapshot returns a point-in-time copy of the records ordered by keyword.
// The sequence can be ranged over any number of times.
func (s *Store) Snapshot() iter.Seq[Record] {
	records := s.sorted()
	return func(yield func(Record) bool) {
		for _, record := range records {
			if !yield(record.Clone()) {
				return
			}
		}
	}
}

// Records returns the snapshot as a keyword-indexed map.
func (s *Store) Records() map[types.Keyword]Record {
	out := make(map[types.Keyword]Record, s.Len())
	for record := range s.Snapshot() {
		out[record.Keyword] = record
	}
	return out
}

// Values returns the quantities only.
func (s *Store) Values() types.Allocation {
	out := make(types.Allocation, s.Len())
	for record := range s.Snapshot() {
		out[record.Keyword] = record.Quantity
	}
	return out
}

// RecomputeDerived re-derives MaxBorrowable for every record.
func (s *Store) RecomputeDerived() error {
	if s == nil || s.records == nil {
		return errNilStore
	}
	updated := make(map[types.Keyword]Record, len(s.records))
	for keyword, record := range s.records {
		next := record.Clone()
		if err := derive(&next); err != nil {
			return err
		}
		updated[keyword] = next
	}
	s.records = updated
	return nil
}

func (s *Store) sorted() []Record {
	if s == nil {
		return nil
	}
	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Keyword < records[j].Keyword })
	return records
}

func (s *Store) stage(record Record) (storage.Batch, error) {
	if s.db == nil {
		return nil, nil
	}
	encoded, err := encodeRecord(record)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s: %w", record.Keyword, err)
	}
	batch := s.db.NewBatch()
	batch.Put(recordKey(s.owner, record.Keyword), encoded)
	return batch, nil
}

func (s *Store) commit(batch storage.Batch) error {
	if batch == nil {
		return nil
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("ledger: persist %s: %w", s.owner, err)
	}
	return nil
}

func derive(record *Record) error {
	if record.MaxLtvRatio == nil {
		record.MaxBorrowable = nil
		return nil
	}
	value, err := types.Convert(record.Quantity, *record.MaxLtvRatio)
	if err != nil {
		return fmt.Errorf("ledger: derive %s: %w", record.Keyword, err)
	}
	record.MaxBorrowable = &value
	return nil
}

func ownerPrefix(owner string) []byte {
	var buf bytes.Buffer
	buf.Write(recordPrefix)
	buf.WriteString(owner)
	buf.WriteByte('/')
	return buf.Bytes()
}

func recordKey(owner string, keyword types.Keyword) []byte {
	return append(ownerPrefix(owner), []byte(keyword)...)
}

type storedRecord struct {
	Keyword            string
	Quantity           string
	HasRatio           bool
	NumeratorKeyword   string
	NumeratorQty       string
	DenominatorKeyword string
	DenominatorQty     string
}

func encodeRecord(record Record) ([]byte, error) {
	stored := storedRecord{
		Keyword:  string(record.Keyword),
		Quantity: record.Quantity.Dec(),
	}
	if record.MaxLtvRatio != nil {
		stored.HasRatio = true
		stored.NumeratorKeyword = string(record.MaxLtvRatio.Numerator.Keyword())
		stored.NumeratorQty = record.MaxLtvRatio.Numerator.Dec()
		stored.DenominatorKeyword = string(record.MaxLtvRatio.Denominator.Keyword())
		stored.DenominatorQty = record.MaxLtvRatio.Denominator.Dec()
	}
	return rlp.EncodeToBytes(stored)
}

func decodeRecord(raw []byte) (Record, error) {
	var stored storedRecord
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Record{}, err
	}
	keyword := types.Keyword(stored.Keyword)
	quantity, err := types.ParseAmount(keyword, stored.Quantity)
	if err != nil {
		return Record{}, err
	}
	record := Record{Keyword: keyword, Quantity: quantity}
	if !stored.HasRatio {
		return record, nil
	}
	numerator, err := types.ParseAmount(types.Keyword(stored.NumeratorKeyword), stored.NumeratorQty)
	if err != nil {
		return Record{}, err
	}
	denominator, err := types.ParseAmount(types.Keyword(stored.DenominatorKeyword), stored.DenominatorQty)
	if err != nil {
		return Record{}, err
	}
	ratio, err := types.MakeRatio(numerator, denominator)
	if err != nil {
		return Record{}, err
	}
	record.MaxLtvRatio = &ratio
	return record, nil
}
