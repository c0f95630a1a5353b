// Package window maintains per-day unique-author sets and derives rolling
// 1, 7 and 30-day union counts (DAU', WAU', MAU').
//
// The key algorithmic property is union-of-sets semantics: a rolling count
// is the cardinality of the union of the per-day sets in the window, never
// the sum of daily counts, because the same author may appear on several
// days. A day with no recorded activity contributes an empty set.
package window

import (
	"context"
	"fmt"
	"sync"

	"panelgauge/internal/domain/model"
)

// Supported rolling windows in days.
var supportedWindows = map[int]struct{}{1: {}, 7: {}, 30: {}}

// maxWindow is the largest supported window; day-sets must keep raw
// membership at least this long before they are eligible for compaction.
const maxWindow = 30

// Aggregator owns DailyUniqueAuthorSet construction. Day-set mutation is
// serialized, so concurrent per-community merges stay idempotent.
type Aggregator struct {
	mu        sync.RWMutex
	days      map[model.Day]map[string]struct{}
	compacted map[model.Day]int // count-only summaries of expired days
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		days:      make(map[model.Day]map[string]struct{}),
		compacted: make(map[model.Day]int),
	}
}

// Record appends the fact to its day's set. Insertion is idempotent:
// recording the same (author, day) twice has no further effect. It returns
// true when the author was new for that day. Facts merged before a run is
// cancelled stay merged; partial progress is never rolled back.
func (a *Aggregator) Record(ctx context.Context, fact model.AttendanceFact) bool {
	_ = ctx

	a.mu.Lock()
	defer a.mu.Unlock()

	authors, ok := a.days[fact.Day]
	if !ok {
		authors = make(map[string]struct{})
		a.days[fact.Day] = authors
	}
	if _, dup := authors[fact.Author]; dup {
		return false
	}
	authors[fact.Author] = struct{}{}
	return true
}

// Seed restores a day's membership from persisted attendance facts.
func (a *Aggregator) Seed(ctx context.Context, day model.Day, authors []string) {
	for _, author := range authors {
		a.Record(ctx, model.AttendanceFact{Author: author, Day: day})
	}
}

// UniqueCount returns the number of distinct authors in the union of the
// day-sets covering [asOf-window+1, asOf]. The window must be 1, 7 or 30
// days. Days whose membership was compacted can still answer a 1-day count
// from their summary; wider windows touching a compacted day return
// ErrCompacted because the union can no longer be formed.
func (a *Aggregator) UniqueCount(ctx context.Context, window int, asOf model.Day) (int, error) {
	_ = ctx

	if _, ok := supportedWindows[window]; !ok {
		return 0, fmt.Errorf("%w: %d days", ErrUnsupportedWindow, window)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if window == 1 {
		if authors, ok := a.days[asOf]; ok {
			return len(authors), nil
		}
		if n, ok := a.compacted[asOf]; ok {
			return n, nil
		}
		return 0, nil
	}

	union := make(map[string]struct{})
	for d := asOf.Add(-(window - 1)); !asOf.Before(d); d = d.Add(1) {
		if authors, ok := a.days[d]; ok {
			for author := range authors {
				union[author] = struct{}{}
			}
			continue
		}
		if _, gone := a.compacted[d]; gone {
			return 0, fmt.Errorf("%w: %s inside %d-day window ending %s", ErrCompacted, d, window, asOf)
		}
		// Missing day: empty set, not an error.
	}
	return len(union), nil
}

// DayCount returns the unique-author count for a single day, from raw
// membership or a compacted summary.
func (a *Aggregator) DayCount(ctx context.Context, day model.Day) int {
	n, _ := a.UniqueCount(ctx, 1, day)
	return n
}

// Authors returns a copy of the day's raw membership, or nil when the day
// is empty or already compacted. Used to persist day-sets.
func (a *Aggregator) Authors(ctx context.Context, day model.Day) []string {
	_ = ctx

	a.mu.RLock()
	defer a.mu.RUnlock()

	set, ok := a.days[day]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for author := range set {
		out = append(out, author)
	}
	return out
}

// Compact replaces raw day-sets that no future window computation can need
// with count-only summaries. A day is eligible once it lies strictly before
// asOf-maxWindow+1, i.e. outside the largest supported window ending at
// asOf. It returns the number of days compacted.
func (a *Aggregator) Compact(ctx context.Context, asOf model.Day) int {
	_ = ctx

	horizon := asOf.Add(-(maxWindow - 1))

	a.mu.Lock()
	defer a.mu.Unlock()

	compacted := 0
	for day, authors := range a.days {
		if day.Before(horizon) {
			a.compacted[day] = len(authors)
			delete(a.days, day)
			compacted++
		}
	}
	return compacted
}

// RetainedDays returns how many days currently hold raw membership.
func (a *Aggregator) RetainedDays() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.days)
}
