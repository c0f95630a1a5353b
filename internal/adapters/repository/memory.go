package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"panelgauge/internal/domain/model"
)

// MemoryStore implements Store with in-process maps. Used by tests and
// ephemeral runs where durability across restarts is not needed.
type MemoryStore struct {
	mu         sync.RWMutex
	activity   map[int64][]model.ActivityRecord
	attendance map[model.Day]map[string]struct{}
	panels     map[int64][]model.PanelMember
	factors    map[model.Metric][]model.CalibrationFactor
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activity:   make(map[int64][]model.ActivityRecord),
		attendance: make(map[model.Day]map[string]struct{}),
		panels:     make(map[int64][]model.PanelMember),
		factors:    make(map[model.Metric][]model.CalibrationFactor),
	}
}

// AppendActivity stores normalized activity records.
func (s *MemoryStore) AppendActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.activity[epoch] = append(s.activity[epoch], records...)
	return nil
}

// AppendAttendance stores attendance facts idempotently.
func (s *MemoryStore) AppendAttendance(ctx context.Context, facts []model.AttendanceFact) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, f := range facts {
		authors, ok := s.attendance[f.Day]
		if !ok {
			authors = make(map[string]struct{})
			s.attendance[f.Day] = authors
		}
		authors[f.Author] = struct{}{}
	}
	return nil
}

// DaySet returns the distinct authors recorded for a day, sorted.
func (s *MemoryStore) DaySet(ctx context.Context, day model.Day) ([]string, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	authors := make([]string, 0, len(s.attendance[day]))
	for a := range s.attendance[day] {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	return authors, nil
}

// DayRange returns per-day author sets for [from, to].
func (s *MemoryStore) DayRange(ctx context.Context, from, to model.Day) (map[model.Day][]string, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[model.Day][]string)
	for day, set := range s.attendance {
		if day.Before(from) || to.Before(day) {
			continue
		}
		authors := make([]string, 0, len(set))
		for a := range set {
			authors = append(authors, a)
		}
		sort.Strings(authors)
		out[day] = authors
	}
	return out, nil
}

// SavePanel persists the frozen snapshot for an epoch.
func (s *MemoryStore) SavePanel(ctx context.Context, epoch int64, members []model.PanelMember) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	frozen := make([]model.PanelMember, len(members))
	copy(frozen, members)
	s.panels[epoch] = frozen
	return nil
}

// Panel returns the persisted snapshot for an epoch.
func (s *MemoryStore) Panel(ctx context.Context, epoch int64) ([]model.PanelMember, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	members, ok := s.panels[epoch]
	if !ok {
		return nil, fmt.Errorf("%w: panel epoch %d", ErrNotFound, epoch)
	}
	out := make([]model.PanelMember, len(members))
	copy(out, members)
	return out, nil
}

// AppendFactor appends one calibration factor to the log.
func (s *MemoryStore) AppendFactor(ctx context.Context, f model.CalibrationFactor) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.factors[f.Metric] = append(s.factors[f.Metric], f)
	return nil
}

// Factors returns the factor log for a metric in append order.
func (s *MemoryStore) Factors(ctx context.Context, metric model.Metric) ([]model.CalibrationFactor, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	log := s.factors[metric]
	out := make([]model.CalibrationFactor, len(log))
	copy(out, log)
	return out, nil
}

// ActivityCount reports stored activity rows for an epoch, used by tests
// and stats.
func (s *MemoryStore) ActivityCount(ctx context.Context, epoch int64) int {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activity[epoch])
}

// Close marks the store closed; later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
