// Package service wires the pipeline together and owns the batch epoch
// loop that the HTTP API and the scheduler drive.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "panelgauge/internal/adapters/mq/queue"
	workerpool "panelgauge/internal/adapters/mq/worker"
	"panelgauge/internal/adapters/repository"
	"panelgauge/internal/domain/calibrate"
	"panelgauge/internal/domain/dedupe"
	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/panel"
	"panelgauge/internal/domain/quality"
	"panelgauge/internal/domain/types"
	"panelgauge/internal/domain/window"
	"panelgauge/pkg/logger"
	"panelgauge/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize      = 10000
	defaultTargetUniverse = 100000
)

// EpochResult summarizes one completed collection run.
type EpochResult struct {
	RunID string
	Epoch int64
	Day   model.Day

	CommunitiesAttempted int
	CommunitiesFetched   int
	ActivityRecords      int
	AttendanceFacts      int

	Proxies    map[model.Metric]int
	Calibrated []model.CalibratedMetric
	Quality    quality.Report
}

// Service implements the pipeline orchestration and the API dependencies.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	registry   *panel.Registry
	deduper    dedupe.Deduper
	aggregator *window.Aggregator
	engine     *calibrate.Engine
	monitor    *quality.Monitor
	fetcher    workerpool.Fetcher
	queue      *jobqueue.InMemoryQueue
	pool       *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	targetUniverse  int
	excludedAuthors []string
	panelMembers    []model.PanelMember
	engineOpts      []calibrate.Option
	monitorOpts     []quality.Option
	now             func() time.Time

	// State
	started bool
	epoch   int64
	lastDay model.Day
	lastRun *EpochResult

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the repository backend. Defaults to the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFetcher sets the content-source fetcher used by the workers.
func WithFetcher(f workerpool.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithWorkerCount sets the number of fetch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the fetch-job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPanelMembers seeds the draft panel, typically from configuration.
func WithPanelMembers(members []model.PanelMember) Option {
	return func(s *Service) {
		s.panelMembers = members
	}
}

// WithExcludedAuthors adds handles to the built-in exclusion set.
func WithExcludedAuthors(handles []string) Option {
	return func(s *Service) {
		s.excludedAuthors = handles
	}
}

// WithTargetUniverse sets the assumed platform-wide community count used
// to derive panel coverage.
func WithTargetUniverse(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.targetUniverse = n
		}
	}
}

// WithCalibrationOptions forwards options to the calibration engine.
func WithCalibrationOptions(opts ...calibrate.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithQualityOptions forwards options to the quality monitor.
func WithQualityOptions(opts ...quality.Option) Option {
	return func(s *Service) {
		s.monitorOpts = append(s.monitorOpts, opts...)
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      defaultQueueSize,
		targetUniverse: defaultTargetUniverse,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the service components and restores persisted state.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.fetcher == nil {
		return errors.New("service requires a fetcher")
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.registry = panel.NewRegistry(panel.WithMembers(s.panelMembers))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithExcludedHandles(s.excludedAuthors...))
	s.aggregator = window.NewAggregator()
	s.engine = calibrate.NewEngine(s.engineOpts...)
	s.monitor = quality.NewMonitor(s.monitorOpts...)

	if err := s.restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	s.queue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
		jobqueue.WithBufferSize(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.fetcher, s, s.queueSize)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "pipeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("panelDraft", s.registry.DraftSize()),
	)
	return nil
}

// restore rebuilds calibration history and recent day-sets from storage so
// rolling windows survive restarts.
func (s *Service) restore(ctx context.Context) error {
	for _, metric := range model.Metrics() {
		factors, err := s.store.Factors(ctx, metric)
		if err != nil {
			return fmt.Errorf("load %s factors: %w", metric, err)
		}
		s.engine.Restore(ctx, factors)
		if len(factors) > 0 {
			latest := factors[len(factors)-1]
			metrics.UpdateCalibrationFactor(string(metric), latest.Factor)
			metrics.UpdateCalibrationConfidence(string(metric), latest.Confidence)
		}
	}

	today := model.DayOf(s.now())
	sets, err := s.store.DayRange(ctx, today.Add(-(model.MetricMAU.Window() - 1)), today)
	if err != nil {
		return fmt.Errorf("load recent day-sets: %w", err)
	}
	for day, authors := range sets {
		s.aggregator.Seed(ctx, day, authors)
		for _, author := range authors {
			s.deduper.SeenAndRecord(ctx, author, day)
		}
	}
	if len(sets) > 0 {
		s.logger.Info(ctx, "restored day-sets from store", logger.Int("days", len(sets)))
	}
	metrics.UpdateRetainedDays(s.aggregator.RetainedDays())
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping pipeline service...")

	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "pipeline service stopped")
}

// RegisterCommunity adds a community to the draft panel, effective from the
// next snapshotted epoch.
func (s *Service) RegisterCommunity(ctx context.Context, m model.PanelMember) error {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()

	if registry == nil {
		return ErrNotStarted
	}
	return registry.Register(ctx, m)
}

// IngestActivity persists fetched records, collapses them into attendance
// facts and folds the facts into the rolling-window state. It reports how
// many new facts survived deduplication. A storage failure aborts before
// the aggregator is touched, so stored facts never lag merged ones.
func (s *Service) IngestActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) (int, error) {
	if err := s.store.AppendActivity(ctx, epoch, records); err != nil {
		return 0, fmt.Errorf("append activity: %w", err)
	}

	facts := s.deduper.Dedupe(ctx, records)
	if dropped := len(records) - len(facts); dropped > 0 {
		for i := 0; i < dropped; i++ {
			metrics.RecordDuplicateActivity()
		}
	}
	if len(facts) == 0 {
		return 0, nil
	}

	if err := s.store.AppendAttendance(ctx, facts); err != nil {
		// Release the seen-state so the next epoch's retry can emit the
		// same facts again; otherwise they are lost until a restart.
		s.deduper.Unrecord(ctx, facts)
		return 0, fmt.Errorf("append attendance: %w", err)
	}
	for _, fact := range facts {
		s.aggregator.Record(ctx, fact)
	}
	return len(facts), nil
}

// RunEpoch executes one scheduled collection cycle for the given day:
// snapshot panel, collect activity through the worker pool, recompute
// window proxies, project calibrated estimates and evaluate run quality.
// Partial failure is normal operation; a failed community is recorded and
// skipped, never retried within the run.
func (s *Service) RunEpoch(ctx context.Context, day model.Day) (*EpochResult, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	runID := uuid.NewString()
	start := s.now()
	log := s.logger.Named("run")

	members := s.registry.Snapshot(ctx, epoch)
	if err := s.store.SavePanel(ctx, epoch, members); err != nil {
		return nil, fmt.Errorf("save panel snapshot: %w", err)
	}
	s.engine.SetCoverage(ctx, float64(len(members))/float64(s.targetUniverse))

	log.Info(ctx, "collection run started",
		logger.String("runID", runID),
		logger.Int64("epoch", epoch),
		logger.String("day", day.String()),
		logger.Int("panel", len(members)),
	)

	stats := quality.RunStats{
		RunID:                runID,
		Epoch:                epoch,
		Day:                  day,
		CommunitiesAttempted: len(members),
		FetchFailures:        make(map[string]string),
	}

	since, until := day.Time(), day.Add(1).Time()
	enqueued := 0
	for _, m := range members {
		job := jobqueue.Job{Epoch: epoch, Community: m.Community, Since: since, Until: until}
		if !s.queue.Enqueue(ctx, job) {
			stats.FetchFailures[m.Community] = "queue_full"
			continue
		}
		enqueued++
	}

	result := &EpochResult{
		RunID: runID,
		Epoch: epoch,
		Day:   day,

		CommunitiesAttempted: len(members),
		Proxies:              make(map[model.Metric]int),
	}

	var ingestErr error
	for received := 0; received < enqueued; received++ {
		select {
		case res := <-s.pool.Results():
			if res.Err != nil {
				if errors.Is(res.Err, workerpool.ErrIngest) && ingestErr == nil {
					ingestErr = res.Err
				}
				stats.FetchFailures[res.Job.Community] = failureReason(res.Err)
				continue
			}
			result.CommunitiesFetched++
			result.ActivityRecords += res.Fetched
			result.AttendanceFacts += res.Facts
		case <-ctx.Done():
			return nil, fmt.Errorf("collection run %s interrupted: %w", runID, ctx.Err())
		}
	}
	// Fetch failures are routine and absorbed; a storage failure breaks
	// point-in-time consistency and aborts the run once every in-flight
	// job has reported back. Facts merged before the failure stay.
	if ingestErr != nil {
		return nil, fmt.Errorf("collection run %s aborted: %w", runID, ingestErr)
	}
	stats.CommunitiesFetched = result.CommunitiesFetched

	for _, metric := range model.Metrics() {
		proxy, err := s.aggregator.UniqueCount(ctx, metric.Window(), day)
		if err != nil {
			log.Warn(ctx, "proxy unavailable",
				logger.String("metric", string(metric)),
				logger.Error(err),
			)
			continue
		}
		result.Proxies[metric] = proxy
		metrics.UpdateProxyCount(string(metric), float64(proxy))

		if factor, ok := s.engine.Latest(ctx, metric); ok {
			cm := s.engine.Project(ctx, metric, float64(proxy), factor, day)
			result.Calibrated = append(result.Calibrated, cm)
		}
	}

	stats.AuthorFacts = s.authorFacts(ctx, day)
	if s.hasFactors(ctx) {
		stats.MonotonicChecked = true
		stats.MonotonicOK, stats.MonotonicDetail = s.engine.Monotonic(ctx)
	}

	result.Quality = s.monitor.Evaluate(ctx, stats)
	metrics.UpdateCollectionEfficiency(result.Quality.CollectionEfficiency)
	for _, flag := range result.Quality.Flags {
		metrics.RecordQualityFlag(flag.Kind)
		log.Warn(ctx, "quality flag raised",
			logger.String("runID", runID),
			logger.String("kind", flag.Kind),
			logger.String("detail", flag.Detail),
		)
	}

	compacted := s.aggregator.Compact(ctx, day)
	horizon := day.Add(-(model.MetricMAU.Window() - 1))
	s.deduper.Forget(ctx, horizon)
	metrics.UpdateRetainedDays(s.aggregator.RetainedDays())

	metrics.RecordRunDuration(float64(s.now().Sub(start).Milliseconds()))

	s.mu.Lock()
	s.lastDay = day
	s.lastRun = result
	s.mu.Unlock()

	log.Info(ctx, "collection run finished",
		logger.String("runID", runID),
		logger.Int("fetched", result.CommunitiesFetched),
		logger.Int("attempted", result.CommunitiesAttempted),
		logger.Int("facts", result.AttendanceFacts),
		logger.Float64("efficiency", result.Quality.CollectionEfficiency),
		logger.Int("compactedDays", compacted),
	)
	return result, nil
}

// failureReason maps a job error to a stable reporting label, separating
// platform fetch trouble from our own storage trouble.
func failureReason(err error) string {
	if errors.Is(err, workerpool.ErrIngest) {
		return "storage"
	}
	var r workerpool.Reason
	if errors.As(err, &r) {
		return r.Reason()
	}
	return "error"
}

// authorFacts counts attendance facts per author across the MAU window
// ending at day, feeding the skew check.
func (s *Service) authorFacts(ctx context.Context, day model.Day) map[string]int {
	counts := make(map[string]int)
	for d := day.Add(-(model.MetricMAU.Window() - 1)); !day.Before(d); d = d.Add(1) {
		for _, author := range s.aggregator.Authors(ctx, d) {
			counts[author]++
		}
	}
	return counts
}

func (s *Service) hasFactors(ctx context.Context) bool {
	for _, metric := range model.Metrics() {
		if _, ok := s.engine.Latest(ctx, metric); ok {
			return true
		}
	}
	return false
}

// SupplyGroundTruth records an externally reported metric value, computes a
// new calibration factor against the latest proxy and appends it to the
// factor log. The previous factor stays in effect when inputs are invalid.
func (s *Service) SupplyGroundTruth(ctx context.Context, metric model.Metric, reported float64) (model.CalibrationFactor, error) {
	s.mu.RLock()
	started := s.started
	day := s.lastDay
	s.mu.RUnlock()

	if !started {
		return model.CalibrationFactor{}, ErrNotStarted
	}
	if day == "" {
		return model.CalibrationFactor{}, fmt.Errorf("%w: %s", ErrNoProxy, metric)
	}

	proxy, err := s.aggregator.UniqueCount(ctx, metric.Window(), day)
	if err != nil {
		return model.CalibrationFactor{}, fmt.Errorf("proxy for %s: %w", metric, err)
	}

	previous, hadPrevious := s.engine.Latest(ctx, metric)
	factor, err := s.engine.ComputeFactor(ctx, metric, reported, float64(proxy), model.CauseNewGroundTruth)
	if err != nil {
		return model.CalibrationFactor{}, err
	}
	if err := s.store.AppendFactor(ctx, factor); err != nil {
		return model.CalibrationFactor{}, fmt.Errorf("persist factor: %w", err)
	}

	metrics.UpdateCalibrationFactor(string(metric), factor.Factor)
	metrics.UpdateCalibrationConfidence(string(metric), factor.Confidence)

	if ok, detail := s.engine.Monotonic(ctx); !ok {
		metrics.RecordQualityFlag(quality.FlagFactorDrift)
		s.logger.Warn(ctx, "factor ordering violated", logger.String("detail", detail))
	}
	if hadPrevious {
		s.logger.Info(ctx, "calibration factor recomputed",
			logger.String("metric", string(metric)),
			logger.Float64("previous", previous.Factor),
			logger.Float64("current", factor.Factor),
		)
	}
	return factor, nil
}

// SeedGroundTruth supplies configured reported values for metrics that have
// no calibration history yet. Metrics with persisted factors keep them, so
// a restart never clobbers calibration learned from operator input.
func (s *Service) SeedGroundTruth(ctx context.Context, reported map[model.Metric]float64) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	if !started {
		return ErrNotStarted
	}

	for _, metric := range model.Metrics() {
		value, ok := reported[metric]
		if !ok || value <= 0 {
			continue
		}
		if _, ok := s.engine.Latest(ctx, metric); ok {
			continue
		}
		if _, err := s.SupplyGroundTruth(ctx, metric, value); err != nil {
			return fmt.Errorf("seed %s ground truth: %w", metric, err)
		}
	}
	return nil
}

// MetricsReport returns calibrated-report rows for the given day. Metrics
// whose proxy cannot be formed (compacted window) or that have no factor
// yet are reported with what is known: proxy-only rows carry zero
// calibrated value and confidence.
func (s *Service) MetricsReport(ctx context.Context, day model.Day) ([]types.MetricRow, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	if !started {
		return nil, ErrNotStarted
	}

	rows := make([]types.MetricRow, 0, len(model.Metrics()))
	for _, metric := range model.Metrics() {
		proxy, err := s.aggregator.UniqueCount(ctx, metric.Window(), day)
		if err != nil {
			if errors.Is(err, window.ErrCompacted) {
				continue
			}
			return nil, err
		}

		if factor, ok := s.engine.Latest(ctx, metric); ok {
			cm := s.engine.Project(ctx, metric, float64(proxy), factor, day)
			rows = append(rows, types.MetricRowFrom(cm))
			continue
		}
		rows = append(rows, types.MetricRow{
			Metric: string(metric),
			Day:    day.String(),
			Proxy:  float64(proxy),
		})
	}
	return rows, nil
}

// QualityReport returns the advisory report of the most recent run.
func (s *Service) QualityReport(ctx context.Context) (types.QualityRow, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return types.QualityRow{}, ErrNotStarted
	}
	if s.lastRun == nil {
		return types.QualityRow{}, ErrNoCompletedRun
	}

	report := s.lastRun.Quality
	row := types.QualityRow{
		RunID:                report.RunID,
		Day:                  report.Day.String(),
		CollectionEfficiency: report.CollectionEfficiency,
		Flags:                make([]types.QualityFlag, 0, len(report.Flags)),
	}
	for _, f := range report.Flags {
		row.Flags = append(row.Flags, types.QualityFlag{Kind: f.Kind, Detail: f.Detail})
	}
	return row, nil
}

// GetStats returns a point-in-time snapshot of pipeline state for /stats.
func (s *Service) GetStats() types.StatsRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := types.StatsRow{
		Started:     s.started,
		WorkerCount: s.workerCount,
		QueueSize:   s.queueSize,
	}
	if !s.started {
		return row
	}

	row.Epoch = s.epoch
	row.PanelDraft = s.registry.DraftSize()
	row.QueueLength = s.queue.Len(context.Background())
	row.RetainedDays = s.aggregator.RetainedDays()
	row.DedupeSize = s.deduper.Size()
	if s.lastRun != nil {
		row.LastRunID = s.lastRun.RunID
		row.LastRunDay = s.lastRun.Day.String()
		row.LastRunEfficiency = s.lastRun.Quality.CollectionEfficiency
	}
	return row
}

// Size returns the number of (author, day) pairs tracked by the deduper.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
