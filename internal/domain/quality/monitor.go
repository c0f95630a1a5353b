// Package quality evaluates collection runs and raises advisory flags.
//
// The monitor consumes the same data as the pipeline but never mutates it;
// its output exists so operators can tell a low-activity day apart from a
// collection that mostly failed.
package quality

import (
	"context"
	"fmt"
	"sort"

	"panelgauge/internal/domain/model"
)

// Flag kinds surfaced to operators. All are advisory and non-blocking.
const (
	FlagCoverage    = "coverage"
	FlagSkew        = "skew"
	FlagFactorDrift = "factor-drift"
)

// Default thresholds, taken from the original monitoring system.
const (
	defaultMinEfficiency   = 0.8
	defaultTopK            = 10
	defaultMaxTopShare     = 0.5
	defaultFactorTolerance = 0.25
)

// Flag is one finding with a machine-readable kind and a human detail.
type Flag struct {
	Kind   string
	Detail string
}

// FactorChange pairs the previous and newly computed factor for a metric.
type FactorChange struct {
	Metric   model.Metric
	Previous float64 // 0 when there was no prior factor
	Current  float64
}

// RunStats is everything the monitor needs about one collection run.
type RunStats struct {
	RunID string
	Epoch int64
	Day   model.Day

	CommunitiesAttempted int
	CommunitiesFetched   int
	FetchFailures        map[string]string // community -> reason

	AuthorFacts map[string]int // author -> attendance facts in the run's window

	FactorChanges    []FactorChange
	MonotonicOK      bool
	MonotonicDetail  string
	MonotonicChecked bool
}

// Report is the advisory output of one evaluation.
type Report struct {
	RunID                string
	Day                  model.Day
	CollectionEfficiency float64
	Flags                []Flag
}

// Monitor applies configured thresholds to run statistics.
type Monitor struct {
	minEfficiency   float64
	topK            int
	maxTopShare     float64
	factorTolerance float64
}

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithMinEfficiency sets the collection-efficiency floor below which a
// coverage flag is raised.
func WithMinEfficiency(min float64) Option {
	return func(m *Monitor) {
		if min > 0 && min <= 1 {
			m.minEfficiency = min
		}
	}
}

// WithTopAuthorShare configures the skew check: flag when the top k authors
// hold more than share of all attendance facts.
func WithTopAuthorShare(k int, share float64) Option {
	return func(m *Monitor) {
		if k > 0 {
			m.topK = k
		}
		if share > 0 && share <= 1 {
			m.maxTopShare = share
		}
	}
}

// WithFactorTolerance sets the relative deviation between consecutive
// factors above which a drift flag is raised.
func WithFactorTolerance(tol float64) Option {
	return func(m *Monitor) {
		if tol > 0 {
			m.factorTolerance = tol
		}
	}
}

// NewMonitor creates a monitor with the default thresholds.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		minEfficiency:   defaultMinEfficiency,
		topK:            defaultTopK,
		maxTopShare:     defaultMaxTopShare,
		factorTolerance: defaultFactorTolerance,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate produces a quality report for the run. It always returns a
// report, including for runs where every fetch failed.
func (m *Monitor) Evaluate(ctx context.Context, stats RunStats) Report {
	_ = ctx

	report := Report{
		RunID: stats.RunID,
		Day:   stats.Day,
	}

	if stats.CommunitiesAttempted > 0 {
		report.CollectionEfficiency = float64(stats.CommunitiesFetched) / float64(stats.CommunitiesAttempted)
	}

	if flag, ok := m.checkCoverage(stats, report.CollectionEfficiency); ok {
		report.Flags = append(report.Flags, flag)
	}
	if flag, ok := m.checkSkew(stats); ok {
		report.Flags = append(report.Flags, flag)
	}
	report.Flags = append(report.Flags, m.checkFactors(stats)...)

	return report
}

func (m *Monitor) checkCoverage(stats RunStats, efficiency float64) (Flag, bool) {
	if stats.CommunitiesAttempted == 0 {
		return Flag{Kind: FlagCoverage, Detail: "no communities attempted"}, true
	}
	if efficiency >= m.minEfficiency {
		return Flag{}, false
	}
	return Flag{
		Kind: FlagCoverage,
		Detail: fmt.Sprintf("collection efficiency %.2f below %.2f (%d/%d communities, %d failures)",
			efficiency, m.minEfficiency, stats.CommunitiesFetched, stats.CommunitiesAttempted, len(stats.FetchFailures)),
	}, true
}

// checkSkew flags runs where a handful of authors dominate attendance,
// which usually means bot or spam traffic slipped past the exclusion list.
func (m *Monitor) checkSkew(stats RunStats) (Flag, bool) {
	total := 0
	counts := make([]int, 0, len(stats.AuthorFacts))
	for _, n := range stats.AuthorFacts {
		total += n
		counts = append(counts, n)
	}
	if total == 0 || len(counts) <= m.topK {
		return Flag{}, false
	}

	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	top := 0
	for _, n := range counts[:m.topK] {
		top += n
	}
	share := float64(top) / float64(total)
	if share <= m.maxTopShare {
		return Flag{}, false
	}
	return Flag{
		Kind: FlagSkew,
		Detail: fmt.Sprintf("top %d authors hold %.2f of attendance facts (threshold %.2f)",
			m.topK, share, m.maxTopShare),
	}, true
}

func (m *Monitor) checkFactors(stats RunStats) []Flag {
	var flags []Flag
	for _, fc := range stats.FactorChanges {
		if fc.Previous <= 0 || fc.Current <= 0 {
			continue
		}
		deviation := fc.Current/fc.Previous - 1
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > m.factorTolerance {
			flags = append(flags, Flag{
				Kind: FlagFactorDrift,
				Detail: fmt.Sprintf("%s factor moved %.1f%% (%.2f -> %.2f), tolerance %.0f%%",
					fc.Metric, deviation*100, fc.Previous, fc.Current, m.factorTolerance*100),
			})
		}
	}
	if stats.MonotonicChecked && !stats.MonotonicOK {
		flags = append(flags, Flag{
			Kind:   FlagFactorDrift,
			Detail: "factor ordering violated: " + stats.MonotonicDetail,
		})
	}
	return flags
}
