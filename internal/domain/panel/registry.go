// Package panel holds the versioned registry of sampled communities.
//
// The registry separates a mutable draft (what operators register) from
// frozen per-epoch snapshots (what a collection run actually samples).
// A snapshot is materialized the first time an epoch is requested and never
// changes afterwards, so historical rolling windows stay reproducible from
// stored data alone. Registrations only affect epochs snapshotted later.
package panel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"panelgauge/internal/domain/model"
)

// Registry manages the tracking panel across epochs.
type Registry struct {
	mu        sync.RWMutex
	draft     map[string]model.PanelMember
	snapshots map[int64][]model.PanelMember
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithMembers seeds the draft panel, typically from configuration or a
// persisted panel table.
func WithMembers(members []model.PanelMember) Option {
	return func(r *Registry) {
		for _, m := range members {
			r.draft[m.Community] = m
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		draft:     make(map[string]model.PanelMember),
		snapshots: make(map[int64][]model.PanelMember),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a community to the draft panel. It returns
// ErrDuplicateMember if the community id is already present. The new member
// takes effect at the next snapshotted epoch, never retroactively.
func (r *Registry) Register(ctx context.Context, m model.PanelMember) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.draft[m.Community]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, m.Community)
	}
	r.draft[m.Community] = m
	return nil
}

// Snapshot returns the panel for the given epoch, materializing and freezing
// it from the current draft on first request. The result is ordered by
// community id and therefore deterministic for a given epoch.
func (r *Registry) Snapshot(ctx context.Context, epoch int64) []model.PanelMember {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if frozen, ok := r.snapshots[epoch]; ok {
		out := make([]model.PanelMember, len(frozen))
		copy(out, frozen)
		return out
	}

	frozen := make([]model.PanelMember, 0, len(r.draft))
	for _, m := range r.draft {
		if m.JoinedEpoch == 0 {
			m.JoinedEpoch = epoch
		}
		frozen = append(frozen, m)
	}
	sort.Slice(frozen, func(i, j int) bool {
		return frozen[i].Community < frozen[j].Community
	})
	r.snapshots[epoch] = frozen

	out := make([]model.PanelMember, len(frozen))
	copy(out, frozen)
	return out
}

// Restore installs a previously persisted snapshot for an epoch, used when
// rebuilding state from the repository at startup. An existing snapshot for
// the epoch is left untouched.
func (r *Registry) Restore(ctx context.Context, epoch int64, members []model.PanelMember) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snapshots[epoch]; ok {
		return
	}
	frozen := make([]model.PanelMember, len(members))
	copy(frozen, members)
	sort.Slice(frozen, func(i, j int) bool {
		return frozen[i].Community < frozen[j].Community
	})
	r.snapshots[epoch] = frozen
}

// Frozen returns the stored snapshot for an epoch without materializing a
// new one. It returns ErrUnknownEpoch when the epoch was never snapshotted.
func (r *Registry) Frozen(ctx context.Context, epoch int64) ([]model.PanelMember, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	frozen, ok := r.snapshots[epoch]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEpoch, epoch)
	}
	out := make([]model.PanelMember, len(frozen))
	copy(out, frozen)
	return out, nil
}

// DraftSize returns the number of communities currently in the draft panel.
func (r *Registry) DraftSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.draft)
}
