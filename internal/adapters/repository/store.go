// Package repository defines the durable storage collaborator for the
// pipeline: append-only activity and attendance tables, per-epoch panel
// snapshots, an append-only calibration-factor log and the day/day-range
// point queries the aggregator needs to rebuild state.
package repository

import (
	"context"

	"panelgauge/internal/domain/model"
)

// Store provides durable access to pipeline state. Activity and attendance
// are append-only; calibration factors are a log with a new row per
// computation, never overwritten. A Store error is fatal to the current
// run: the service aborts without committing that run's not-yet-merged
// authors, preserving point-in-time consistency.
type Store interface {
	// AppendActivity durably stores normalized activity records.
	AppendActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) error

	// AppendAttendance durably stores attendance facts. Re-appending an
	// existing (author, day) pair is a no-op.
	AppendAttendance(ctx context.Context, facts []model.AttendanceFact) error

	// DaySet returns the distinct authors recorded for a day.
	DaySet(ctx context.Context, day model.Day) ([]string, error)

	// DayRange returns per-day author sets for [from, to], inclusive.
	// Days without facts are absent from the result.
	DayRange(ctx context.Context, from, to model.Day) (map[model.Day][]string, error)

	// SavePanel persists the frozen panel snapshot for an epoch.
	SavePanel(ctx context.Context, epoch int64, members []model.PanelMember) error

	// Panel returns the persisted snapshot for an epoch, or ErrNotFound.
	Panel(ctx context.Context, epoch int64) ([]model.PanelMember, error)

	// AppendFactor appends one calibration factor to the log.
	AppendFactor(ctx context.Context, f model.CalibrationFactor) error

	// Factors returns the factor log for a metric in append order.
	Factors(ctx context.Context, metric model.Metric) ([]model.CalibrationFactor, error)

	// Close releases backend resources.
	Close() error
}
