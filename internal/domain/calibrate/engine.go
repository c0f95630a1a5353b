// Package calibrate converts panel-level proxy metrics into absolute
// platform-wide estimates.
//
// A calibration factor is the ratio of an externally reported ground-truth
// value to the proxy observed for the same metric. Projection is a pure
// multiplication with no hidden smoothing, so results are exactly
// reproducible from inputs. Factors are kept in an append-only per-metric
// log for drift auditing; the engine never mutates activity or attendance
// data.
package calibrate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"panelgauge/internal/domain/model"
)

// Default confidence parameters. Coverage is the fraction of the target
// universe the panel samples; the original tracking system assumed a
// universe of roughly 100k active communities.
const (
	defaultCoverage     = 0.0025
	defaultHalfLifeDays = 30.0
)

// Engine computes calibration factors and projects proxies through them.
type Engine struct {
	mu           sync.RWMutex
	history      map[model.Metric][]model.CalibrationFactor
	coverage     float64
	halfLifeDays float64
	now          func() time.Time
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCoverage sets the panel coverage used for confidence scoring.
func WithCoverage(coverage float64) Option {
	return func(e *Engine) {
		if coverage > 0 {
			e.coverage = coverage
		}
	}
}

// WithHalfLife sets the confidence half-life in days: the calibration age
// at which confidence drops to half its at-computation value.
func WithHalfLife(days float64) Option {
	return func(e *Engine) {
		if days > 0 {
			e.halfLifeDays = days
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a calibration engine with an empty factor history.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		history:      make(map[model.Metric][]model.CalibrationFactor),
		coverage:     defaultCoverage,
		halfLifeDays: defaultHalfLifeDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetCoverage updates the panel coverage as the panel or the assumed target
// universe changes. Factors already computed keep the confidence they were
// stamped with.
func (e *Engine) SetCoverage(ctx context.Context, coverage float64) {
	_ = ctx

	if coverage <= 0 {
		return
	}
	e.mu.Lock()
	e.coverage = math.Min(coverage, 1)
	e.mu.Unlock()
}

// ComputeFactor derives a new calibration factor from a reported
// ground-truth value and the corresponding proxy, appends it to the metric's
// history and returns it. It fails with ErrInvalidCalibrationInput when the
// proxy or reported value is not positive; the previous factor stays in
// effect in that case.
func (e *Engine) ComputeFactor(ctx context.Context, metric model.Metric, reported, proxy float64, cause model.CalibrationCause) (model.CalibrationFactor, error) {
	_ = ctx

	if !metric.Valid() {
		return model.CalibrationFactor{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if proxy <= 0 {
		return model.CalibrationFactor{}, fmt.Errorf("%w: proxy %.2f for %s", ErrInvalidCalibrationInput, proxy, metric)
	}
	if reported <= 0 {
		return model.CalibrationFactor{}, fmt.Errorf("%w: reported %.2f for %s", ErrInvalidCalibrationInput, reported, metric)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f := model.CalibrationFactor{
		Metric:     metric,
		Reported:   reported,
		Proxy:      proxy,
		Factor:     reported / proxy,
		ComputedAt: e.now().UTC(),
		Confidence: math.Min(e.coverageScore(), 1),
		Cause:      cause,
	}
	e.history[metric] = append(e.history[metric], f)
	return f, nil
}

// Project applies a factor to a new proxy value. The calibrated value is
// proxy times factor, exactly; confidence decays monotonically with the
// number of days between the factor's computation and the projection day.
func (e *Engine) Project(ctx context.Context, metric model.Metric, proxy float64, f model.CalibrationFactor, day model.Day) model.CalibratedMetric {
	_ = ctx

	e.mu.RLock()
	halfLife := e.halfLifeDays
	e.mu.RUnlock()

	ageDays := day.Time().Sub(model.DayOf(f.ComputedAt).Time()).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp2(-ageDays / halfLife)

	return model.CalibratedMetric{
		Metric:     metric,
		Day:        day,
		Proxy:      proxy,
		FactorUsed: f.Factor,
		Calibrated: proxy * f.Factor,
		Confidence: f.Confidence * decay,
	}
}

// Latest returns the most recently appended factor for the metric.
func (e *Engine) Latest(ctx context.Context, metric model.Metric) (model.CalibrationFactor, bool) {
	_ = ctx

	e.mu.RLock()
	defer e.mu.RUnlock()

	log := e.history[metric]
	if len(log) == 0 {
		return model.CalibrationFactor{}, false
	}
	return log[len(log)-1], true
}

// History returns a copy of the append-only factor log for the metric.
func (e *Engine) History(ctx context.Context, metric model.Metric) []model.CalibrationFactor {
	_ = ctx

	e.mu.RLock()
	defer e.mu.RUnlock()

	log := e.history[metric]
	out := make([]model.CalibrationFactor, len(log))
	copy(out, log)
	return out
}

// Restore seeds the factor history from persisted rows at startup.
func (e *Engine) Restore(ctx context.Context, factors []model.CalibrationFactor) {
	_ = ctx

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range factors {
		e.history[f.Metric] = append(e.history[f.Metric], f)
	}
}

// Monotonic checks the sanity ordering k_DAU <= k_WAU <= k_MAU over the
// latest factors. Broader windows capture proportionally more of the
// platform's long tail relative to a fixed small panel, so the scaling
// factor should grow with window length. A violation is advisory: panels
// can legitimately be non-representative for short windows, so the caller
// surfaces it as a warning rather than failing.
func (e *Engine) Monotonic(ctx context.Context) (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_ = ctx

	var prev float64
	var prevMetric model.Metric
	for _, metric := range model.Metrics() {
		log := e.history[metric]
		if len(log) == 0 {
			continue
		}
		k := log[len(log)-1].Factor
		if prevMetric != "" && k < prev {
			return false, fmt.Sprintf("k_%s=%.2f < k_%s=%.2f", metric, k, prevMetric, prev)
		}
		prev, prevMetric = k, metric
	}
	return true, ""
}

// coverageScore maps panel coverage to the at-computation confidence.
// Coverage of small panels is tiny in absolute terms, so it is stretched on
// a log scale: full coverage scores 1, one-millionth coverage scores 0.
func (e *Engine) coverageScore() float64 {
	if e.coverage >= 1 {
		return 1
	}
	if e.coverage <= 0 {
		return 0
	}
	score := 1 + math.Log10(e.coverage)/6
	return math.Max(score, 0)
}
