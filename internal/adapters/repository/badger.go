package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"panelgauge/internal/domain/model"
)

// Key prefixes. Attendance keys embed the author hash so re-appending an
// existing (author, day) pair lands on the same key.
const (
	prefixActivity   = "act|"
	prefixAttendance = "att|"
	prefixPanel      = "pan|"
	prefixFactor     = "cal|"
)

// defaultMemTableSize keeps the backend laptop-friendly. Badger defaults to
// 64 MB memtables which is far more than attendance facts need.
const defaultMemTableSize = 16 << 20

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// BadgerOption applies a configuration option to the badger store.
type BadgerOption func(*badger.Options)

// WithInMemory runs the database without touching disk, for tests.
func WithInMemory() BadgerOption {
	return func(o *badger.Options) {
		o.InMemory = true
	}
}

// WithMemTableSize overrides the memtable budget in bytes.
func WithMemTableSize(n int64) BadgerOption {
	return func(o *badger.Options) {
		if n > 0 {
			o.MemTableSize = n
		}
	}
}

// NewBadgerStore opens or creates a BadgerDB-backed store at path.
func NewBadgerStore(path string, opts ...BadgerOption) (*BadgerStore, error) {
	bo := badger.DefaultOptions(path).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(defaultMemTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(defaultMemTableSize / 2).
		WithIndexCacheSize(defaultMemTableSize / 4).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	for _, opt := range opts {
		opt(&bo)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := restoreSeq(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restore sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// restoreSeq finds the highest ordering suffix persisted in the append-only
// logs. Seeding the counter from it keeps keys unique across reopens; a
// counter restarting at zero would silently overwrite the oldest entries.
func restoreSeq(db *badger.DB) (uint64, error) {
	var max uint64
	err := db.View(func(txn *badger.Txn) error {
		io := badger.DefaultIteratorOptions
		io.PrefetchValues = false
		it := txn.NewIterator(io)
		defer it.Close()

		activity := []byte(prefixActivity)
		for it.Seek(activity); it.ValidForPrefix(activity); it.Next() {
			if seq, ok := activitySeq(it.Item().Key()); ok && seq > max {
				max = seq
			}
		}
		factor := []byte(prefixFactor)
		for it.Seek(factor); it.ValidForPrefix(factor); it.Next() {
			if seq, ok := factorSeq(it.Item().Key()); ok && seq > max {
				max = seq
			}
		}
		return nil
	})
	return max, err
}

// nextSeq hands out an ordering suffix for append-only logs, seeded from the
// highest persisted suffix at open.
func (s *BadgerStore) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AppendActivity durably stores normalized activity records.
func (s *BadgerStore) AppendActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			key := activityKey(epoch, rec, s.nextSeq())
			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode activity: %w", err)
			}
			if err := txn.Set(key, value); err != nil {
				return fmt.Errorf("write activity: %w", err)
			}
		}
		return nil
	})
}

// AppendAttendance durably stores attendance facts. The key embeds the
// author hash, so duplicates overwrite in place.
func (s *BadgerStore) AppendAttendance(ctx context.Context, facts []model.AttendanceFact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range facts {
			key := attendanceKey(f.Day, f.Author)
			if err := txn.Set(key, []byte(f.Author)); err != nil {
				return fmt.Errorf("write attendance: %w", err)
			}
		}
		return nil
	})
}

// DaySet returns the distinct authors recorded for a day, sorted.
func (s *BadgerStore) DaySet(ctx context.Context, day model.Day) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	authors := make([]string, 0)
	prefix := []byte(prefixAttendance + string(day) + "|")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				authors = append(authors, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan day set: %w", err)
	}
	sort.Strings(authors)
	return authors, nil
}

// DayRange returns per-day author sets for [from, to], inclusive. Day
// strings sort lexicographically in calendar order, so one prefix scan
// bounded by key comparison covers the range.
func (s *BadgerStore) DayRange(ctx context.Context, from, to model.Day) (map[model.Day][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	out := make(map[model.Day][]string)
	prefix := []byte(prefixAttendance)
	start := []byte(prefixAttendance + string(from) + "|")
	end := prefixAttendance + string(to) + "|\xff"

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if string(item.Key()) > end {
				break
			}
			day, ok := dayFromAttendanceKey(item.Key())
			if !ok {
				continue
			}
			if err := item.Value(func(val []byte) error {
				out[day] = append(out[day], string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan day range: %w", err)
	}
	for day := range out {
		sort.Strings(out[day])
	}
	return out, nil
}

// SavePanel persists the frozen panel snapshot for an epoch.
func (s *BadgerStore) SavePanel(ctx context.Context, epoch int64, members []model.PanelMember) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	value, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode panel: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(panelKey(epoch), value)
	})
}

// Panel returns the persisted snapshot for an epoch.
func (s *BadgerStore) Panel(ctx context.Context, epoch int64) ([]model.PanelMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	var members []model.PanelMember
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(panelKey(epoch))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &members)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: panel epoch %d", ErrNotFound, epoch)
	}
	if err != nil {
		return nil, fmt.Errorf("read panel: %w", err)
	}
	return members, nil
}

// AppendFactor appends one calibration factor to the log.
func (s *BadgerStore) AppendFactor(ctx context.Context, f model.CalibrationFactor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}

	value, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode factor: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(factorKey(f.Metric, s.nextSeq()), value)
	})
}

// Factors returns the factor log for a metric in append order.
func (s *BadgerStore) Factors(ctx context.Context, metric model.Metric) ([]model.CalibrationFactor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	factors := make([]model.CalibrationFactor, 0)
	prefix := []byte(prefixFactor + string(metric) + "|")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var f model.CalibrationFactor
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				return err
			}
			factors = append(factors, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan factors: %w", err)
	}
	return factors, nil
}

// Close shuts the database down cleanly.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// RunGC reclaims value-log space. Callers invoke it off the hot path.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.RunValueLogGC(discardRatio)
}

// activityKey orders records by epoch then insertion, with an author hash
// suffix to spread writes across the keyspace.
func activityKey(epoch int64, rec model.ActivityRecord, seq uint64) []byte {
	key := make([]byte, 0, len(prefixActivity)+24)
	key = append(key, prefixActivity...)
	key = binary.BigEndian.AppendUint64(key, uint64(epoch))
	key = binary.BigEndian.AppendUint64(key, seq)
	key = binary.BigEndian.AppendUint64(key, xxhash.Sum64String(rec.Author))
	return key
}

func attendanceKey(day model.Day, author string) []byte {
	key := make([]byte, 0, len(prefixAttendance)+len(day)+9)
	key = append(key, prefixAttendance...)
	key = append(key, string(day)...)
	key = append(key, '|')
	key = binary.BigEndian.AppendUint64(key, xxhash.Sum64String(author))
	return key
}

func dayFromAttendanceKey(key []byte) (model.Day, bool) {
	rest := key[len(prefixAttendance):]
	if len(rest) < 9 {
		return "", false
	}
	return model.Day(rest[:len(rest)-9]), true
}

func panelKey(epoch int64) []byte {
	key := make([]byte, 0, len(prefixPanel)+8)
	key = append(key, prefixPanel...)
	key = binary.BigEndian.AppendUint64(key, uint64(epoch))
	return key
}

func factorKey(metric model.Metric, seq uint64) []byte {
	key := make([]byte, 0, len(prefixFactor)+len(metric)+9)
	key = append(key, prefixFactor...)
	key = append(key, string(metric)...)
	key = append(key, '|')
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

// activitySeq extracts the ordering suffix from an activity key.
func activitySeq(key []byte) (uint64, bool) {
	if len(key) != len(prefixActivity)+24 {
		return 0, false
	}
	start := len(prefixActivity) + 8
	return binary.BigEndian.Uint64(key[start : start+8]), true
}

// factorSeq extracts the ordering suffix from a factor key.
func factorSeq(key []byte) (uint64, bool) {
	if len(key) < len(prefixFactor)+9 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), true
}
