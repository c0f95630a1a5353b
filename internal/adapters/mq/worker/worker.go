// Package worker defines the collection workers that turn fetch jobs into
// stored activity and attendance facts.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"panelgauge/internal/adapters/mq/queue"
	"panelgauge/internal/domain/model"
	"panelgauge/pkg/logger"
	"panelgauge/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Fetcher lists and normalizes a community's activity for a time range.
type Fetcher interface {
	Fetch(ctx context.Context, community string, since, until time.Time) ([]model.ActivityRecord, error)
}

// Ingestor persists fetched records and folds them into the pipeline's
// attendance state. It reports how many new attendance facts survived
// deduplication.
type Ingestor interface {
	IngestActivity(ctx context.Context, epoch int64, records []model.ActivityRecord) (int, error)
}

// Reason classifies a fetch failure for reporting.
type Reason interface {
	Reason() string
}

// Result is the per-job outcome delivered back to the orchestrator.
type Result struct {
	Job     Job
	Fetched int // normalized records obtained
	Facts   int // new attendance facts after dedup
	Err     error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes fetch jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// FetchWorker implements Worker for collecting community activity.
type FetchWorker struct {
	queue    Queue
	fetcher  Fetcher
	ingestor Ingestor
	results  chan<- Result
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewFetchWorker creates a new worker with configuration options.
func NewFetchWorker(q Queue, f Fetcher, ing Ingestor, results chan<- Result, opts ...Option) *FetchWorker {
	w := &FetchWorker{
		queue:    q,
		fetcher:  f,
		ingestor: ing,
		results:  results,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *FetchWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := w.processJob(ctx, job)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *FetchWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob fetches one community's range and folds it into storage.
// A failed community is a Result with Err set, never a worker crash.
func (w *FetchWorker) processJob(ctx context.Context, job Job) Result {
	metrics.RecordCommunityAttempted()

	records, err := w.fetcher.Fetch(ctx, job.Community, job.Since, job.Until)
	if err != nil {
		reason := "error"
		if r, ok := err.(Reason); ok {
			reason = r.Reason()
		}
		metrics.RecordFetchFailure(reason)
		w.logger.Warn(ctx, "fetch failed",
			logger.String("community", job.Community),
			logger.String("reason", reason),
			logger.Error(err),
		)
		return Result{Job: job, Err: err}
	}
	metrics.RecordCommunityFetched()
	metrics.RecordActivitiesIngested(len(records))

	facts, err := w.ingestor.IngestActivity(ctx, job.Epoch, records)
	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "ingest failed",
			logger.String("community", job.Community),
			logger.Error(err),
		)
		return Result{Job: job, Fetched: len(records), Err: fmt.Errorf("%w: %s: %w", ErrIngest, job.Community, err)}
	}
	metrics.RecordAttendanceFacts(facts)

	return Result{Job: job, Fetched: len(records), Facts: facts}
}

// Pool manages multiple workers sharing one queue and results channel.
type Pool struct {
	workers []*FetchWorker
	queue   Queue
	results chan Result

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool. The results channel is buffered to
// the given size so workers never block the orchestrator draining it.
func NewPool(workerCount int, q Queue, f Fetcher, ing Ingestor, resultBuffer int) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	if resultBuffer < 1 {
		resultBuffer = workerCount
	}

	pool := &Pool{
		workers:  make([]*FetchWorker, workerCount),
		queue:    q,
		results:  make(chan Result, resultBuffer),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewFetchWorker(
			q,
			f,
			ing,
			pool.results,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Results returns the channel of per-job outcomes.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stop gracefully stops all workers without touching the queue.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, w := range p.workers {
		close(w.shutdown)
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue, stops every worker and closes the results
// channel once no worker can write to it anymore.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	close(p.results)
	return nil
}
