// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// dayLayout is the canonical wire format for a UTC calendar date.
const dayLayout = "2006-01-02"

// Day is a UTC calendar date. All day boundaries in the pipeline are UTC
// midnight; a Day never carries a time component.
type Day string

// DayOf returns the UTC calendar date containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// ParseDay parses a YYYY-MM-DD string into a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Time returns the UTC midnight instant that opens the day.
func (d Day) Time() time.Time {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Add returns the day n calendar days after d (n may be negative).
func (d Day) Add(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
// Days compare lexicographically because the layout is big-endian.
func (d Day) Before(other Day) bool {
	return d < other
}

// String returns the YYYY-MM-DD form.
func (d Day) String() string { return string(d) }

// Metric identifies one of the tracked active-user metrics.
type Metric string

// Tracked metrics and their rolling windows.
const (
	MetricDAU Metric = "DAU"
	MetricWAU Metric = "WAU"
	MetricMAU Metric = "MAU"
)

// Metrics lists the tracked metrics in ascending window order.
func Metrics() []Metric {
	return []Metric{MetricDAU, MetricWAU, MetricMAU}
}

// Window returns the rolling window length in days for the metric.
func (m Metric) Window() int {
	switch m {
	case MetricDAU:
		return 1
	case MetricWAU:
		return 7
	case MetricMAU:
		return 30
	}
	return 0
}

// Valid reports whether m is one of the tracked metrics.
func (m Metric) Valid() bool {
	return m.Window() > 0
}

// ActivityKind distinguishes the two kinds of contributing activity.
type ActivityKind string

// Activity kinds produced by the content source.
const (
	KindPost    ActivityKind = "post"
	KindComment ActivityKind = "comment"
)

// PanelMember is one sampled community in the tracking panel.
type PanelMember struct {
	Community   string // unique within the panel
	Category    string // grouping used for coverage reporting
	JoinedEpoch int64  // epoch at which the member became effective
}

// ActivityRecord is a normalized post or comment observed in a panel
// community. Immutable once stored.
type ActivityRecord struct {
	Author    string
	Community string
	Kind      ActivityKind
	Timestamp time.Time // UTC
}

// Day returns the UTC calendar date the activity belongs to.
func (r ActivityRecord) Day() Day {
	return DayOf(r.Timestamp)
}

// AttendanceFact records that an author was active at least once on a given
// UTC day within the panel. Attendance, not activity volume, is the unit of
// account: any number of posts and comments by one author on one day
// collapses into a single fact.
type AttendanceFact struct {
	Author string
	Day    Day
}

// CalibrationCause tags why a calibration factor was computed.
type CalibrationCause string

// Causes recorded in the append-only factor log.
const (
	CauseNewGroundTruth    CalibrationCause = "new-ground-truth"
	CausePeriodicRecompute CalibrationCause = "periodic-recompute"
)

// CalibrationFactor converts a proxy metric into an absolute platform-wide
// estimate. Factors are appended, never overwritten, so drift over time can
// be audited.
type CalibrationFactor struct {
	Metric     Metric
	Reported   float64 // externally reported ground-truth value
	Proxy      float64 // panel-level proxy value at computation time
	Factor     float64 // Reported / Proxy, always > 0
	ComputedAt time.Time
	Confidence float64 // 0..1
	Cause      CalibrationCause
}

// CalibratedMetric is one projected absolute estimate for a day.
type CalibratedMetric struct {
	Metric     Metric
	Day        Day
	Proxy      float64
	FactorUsed float64
	Calibrated float64 // Proxy * FactorUsed, no smoothing
	Confidence float64
}
