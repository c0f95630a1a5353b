// Package dedupe collapses raw activity into attendance facts.
//
// Attendance, not activity volume, is the unit of account: an author who
// posts five times and comments three times on one UTC day contributes a
// single fact to that day. The deduper also filters non-human and
// placeholder authors before counting.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"panelgauge/internal/domain/model"
)

// Placeholder handles the platform substitutes for missing authors.
// Matching is exact and case-sensitive; platform handles are case-sensitive
// identifiers.
var placeholderHandles = map[string]struct{}{
	"[deleted]": {},
	"[removed]": {},
	"None":      {},
	"":          {},
}

// defaultBotHandle is the moderation bot excluded from attendance counting.
const defaultBotHandle = "AutoModerator"

// Deduper turns activity records into per-(author, day) attendance facts.
type Deduper interface {
	// Dedupe filters excluded authors and collapses the batch into at most
	// one AttendanceFact per (author, day). Facts already seen in earlier
	// batches are not emitted again.
	Dedupe(ctx context.Context, records []model.ActivityRecord) []model.AttendanceFact

	// SeenAndRecord atomically checks whether the (author, day) pair was
	// seen and records it if not. Returns true if it was already seen.
	SeenAndRecord(ctx context.Context, author string, day model.Day) bool

	// Unrecord drops seen-state for the given facts so a later batch can
	// emit them again. Callers use it when persisting the facts failed;
	// without it a transient storage error would swallow the attendance
	// for the process lifetime.
	Unrecord(ctx context.Context, facts []model.AttendanceFact)

	// Excluded reports whether the handle is filtered from counting.
	Excluded(handle string) bool

	// Forget drops seen-state for days strictly before the given day, once
	// no future window computation can need it.
	Forget(ctx context.Context, before model.Day)

	// Size returns the number of (author, day) pairs currently tracked.
	Size() int64
}

// inMemoryDeduper implements Deduper with a per-day map of seen authors.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[model.Day]map[string]struct{}
	excluded map[string]struct{}
	size     atomic.Int64
}

// NewInMemoryDeduper creates a deduper with the default exclusion policy.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:     make(map[model.Day]map[string]struct{}),
		excluded: map[string]struct{}{defaultBotHandle: {}},
	}
	for h := range placeholderHandles {
		d.excluded[h] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dedupe filters and collapses a batch of activity records.
func (d *inMemoryDeduper) Dedupe(ctx context.Context, records []model.ActivityRecord) []model.AttendanceFact {
	facts := make([]model.AttendanceFact, 0, len(records))
	for _, rec := range records {
		if d.Excluded(rec.Author) {
			continue
		}
		day := rec.Day()
		if d.SeenAndRecord(ctx, rec.Author, day) {
			continue
		}
		facts = append(facts, model.AttendanceFact{Author: rec.Author, Day: day})
	}
	return facts
}

// SeenAndRecord atomically checks and records an (author, day) pair.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, author string, day model.Day) bool {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	authors, ok := d.seen[day]
	if !ok {
		authors = make(map[string]struct{})
		d.seen[day] = authors
	}
	if _, dup := authors[author]; dup {
		return true
	}
	authors[author] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord drops seen-state for the given facts.
func (d *inMemoryDeduper) Unrecord(ctx context.Context, facts []model.AttendanceFact) {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range facts {
		authors, ok := d.seen[f.Day]
		if !ok {
			continue
		}
		if _, seen := authors[f.Author]; !seen {
			continue
		}
		delete(authors, f.Author)
		d.size.Add(-1)
		if len(authors) == 0 {
			delete(d.seen, f.Day)
		}
	}
}

// Excluded reports whether the handle is filtered from counting.
func (d *inMemoryDeduper) Excluded(handle string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.excluded[handle]
	return ok
}

// Forget drops seen-state for days strictly before the given day.
func (d *inMemoryDeduper) Forget(ctx context.Context, before model.Day) {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	for day, authors := range d.seen {
		if day.Before(before) {
			d.size.Add(int64(-len(authors)))
			delete(d.seen, day)
		}
	}
}

// Size returns the number of tracked (author, day) pairs.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
