package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"panelgauge/internal/domain/model"
	"panelgauge/pkg/logger"
	"panelgauge/pkg/metrics"
)

// Default fetcher configuration constants.
const (
	defaultRatePerSecond = 5.0
	defaultBurst         = 10
	defaultCallTimeout   = 10 * time.Second
	// maxPages bounds runaway cursors from a misbehaving source.
	maxPages = 1000
)

// Fetcher drains a community's paginated listing into normalized activity
// records, throttled by a shared rate limiter and bounded by a per-call
// timeout. Expiry of the timeout is a per-community failure, never a hang.
type Fetcher struct {
	src     Source
	limiter *rate.Limiter
	timeout time.Duration
	logger  logger.Logger
}

// FetcherOption applies a configuration option to the Fetcher.
type FetcherOption func(*Fetcher)

// WithRateLimit throttles calls to the content source.
func WithRateLimit(perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if perSecond > 0 && burst > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCallTimeout bounds each individual source call.
func WithCallTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFetcherLogger sets a custom logger for the fetcher.
func WithFetcherLogger(l logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a fetcher over the given source.
func NewFetcher(src Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
		timeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("fetcher")
	}
	return f
}

// Fetch lists all activity for the community in [since, until) and
// normalizes it. The returned error, if any, is a *FetchError; callers
// record it and move on to the next community. The cursor restarts from
// empty on every call, so incremental collection is driven by advancing
// `since` between epochs.
func (f *Fetcher) Fetch(ctx context.Context, community string, since, until time.Time) ([]model.ActivityRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordFetchLatency(float64(time.Since(start).Milliseconds()))
	}()

	var records []model.ActivityRecord
	cursor := ""
	for page := 0; page < maxPages; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return records, &FetchError{Community: community, Err: err}
		}

		p, err := f.listPage(ctx, community, since, until, cursor)
		if err != nil {
			f.logger.Warn(ctx, "community fetch failed",
				logger.String("community", community),
				logger.Error(err),
			)
			return records, &FetchError{Community: community, Err: err}
		}

		for _, raw := range p.Records {
			rec, ok := normalize(community, raw)
			if !ok {
				continue
			}
			records = append(records, rec)
		}

		if p.NextCursor == "" {
			return records, nil
		}
		cursor = p.NextCursor
	}
	return records, &FetchError{Community: community, Err: fmt.Errorf("pagination exceeded %d pages", maxPages)}
}

// listPage performs one bounded source call.
func (f *Fetcher) listPage(ctx context.Context, community string, since, until time.Time, cursor string) (Page, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.src.ListActivity(callCtx, community, since, until, cursor)
}

// normalize converts a raw platform record into the common record shape.
// Records with unknown kinds are dropped rather than guessed at.
func normalize(community string, raw Activity) (model.ActivityRecord, bool) {
	var kind model.ActivityKind
	switch raw.Kind {
	case string(model.KindPost):
		kind = model.KindPost
	case string(model.KindComment):
		kind = model.KindComment
	default:
		return model.ActivityRecord{}, false
	}
	return model.ActivityRecord{
		Author:    raw.Author,
		Community: community,
		Kind:      kind,
		Timestamp: raw.CreatedAt.UTC(),
	}, true
}
