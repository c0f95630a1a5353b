package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"panelgauge/internal/adapters/mq/queue"
	"panelgauge/internal/adapters/mq/worker"
	"panelgauge/internal/domain/model"
	"panelgauge/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type stubFetcher struct {
	mu      sync.Mutex
	records map[string][]model.ActivityRecord
	fail    map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, community string, _, _ time.Time) ([]model.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[community]; ok {
		return nil, err
	}
	return f.records[community], nil
}

type stubIngestor struct {
	mu     sync.Mutex
	total  int
	failOn string
}

func (i *stubIngestor) IngestActivity(_ context.Context, _ int64, records []model.ActivityRecord) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, rec := range records {
		if rec.Community == i.failOn {
			return 0, errors.New("storage unavailable")
		}
	}
	i.total += len(records)
	return len(records), nil
}

func rec(author, community string) model.ActivityRecord {
	return model.ActivityRecord{
		Author:    author,
		Community: community,
		Kind:      model.KindPost,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func fetchJob(community string) queue.Job {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return queue.Job{Epoch: 1, Community: community, Since: since, Until: since.AddDate(0, 0, 1)}
}

func collect(t *testing.T, results <-chan worker.Result, n int) map[string]worker.Result {
	t.Helper()
	out := make(map[string]worker.Result, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case res := <-results:
			out[res.Job.Community] = res
		case <-deadline:
			t.Fatalf("timed out waiting for %d results, have %d", n, len(out))
		}
	}
	return out
}

func TestPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Convey("Given a pool over a queue with mixed jobs", t, func() {
		fetcher := &stubFetcher{
			records: map[string][]model.ActivityRecord{
				"golang":  {rec("alice", "golang"), rec("bob", "golang")},
				"homelab": {rec("carol", "homelab")},
			},
			fail: map[string]error{
				"private_club": errors.New("forbidden"),
			},
		}
		ingestor := &stubIngestor{}
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pool := worker.NewPool(2, q, fetcher, ingestor, 16)

		Convey("When jobs are enqueued and the pool runs", func() {
			pool.Start(ctx)
			So(q.Enqueue(ctx, fetchJob("golang")), ShouldBeTrue)
			So(q.Enqueue(ctx, fetchJob("homelab")), ShouldBeTrue)
			So(q.Enqueue(ctx, fetchJob("private_club")), ShouldBeTrue)

			results := collect(t, pool.Results(), 3)

			Convey("Then successful jobs report fetched counts and facts", func() {
				So(results["golang"].Err, ShouldBeNil)
				So(results["golang"].Fetched, ShouldEqual, 2)
				So(results["golang"].Facts, ShouldEqual, 2)
				So(results["homelab"].Fetched, ShouldEqual, 1)
			})

			Convey("Then a failed community reports its error without stopping others", func() {
				So(results["private_club"].Err, ShouldNotBeNil)
				So(results["private_club"].Fetched, ShouldEqual, 0)
			})

			Convey("Then ingested records reached storage", func() {
				So(ingestor.total, ShouldEqual, 3)
			})

			pool.Stop()
		})

		Convey("When ingestion fails", func() {
			ingestor.failOn = "golang"
			pool.Start(ctx)
			So(q.Enqueue(ctx, fetchJob("golang")), ShouldBeTrue)

			results := collect(t, pool.Results(), 1)

			Convey("Then the result carries the ingest error and the fetch count", func() {
				So(results["golang"].Err, ShouldNotBeNil)
				So(errors.Is(results["golang"].Err, worker.ErrIngest), ShouldBeTrue)
				So(results["golang"].Fetched, ShouldEqual, 2)
				So(results["golang"].Facts, ShouldEqual, 0)
			})

			pool.Stop()
		})
	})

	Convey("Given a pool shut down via the queue", t, func() {
		fetcher := &stubFetcher{records: map[string][]model.ActivityRecord{}}
		ingestor := &stubIngestor{}
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pool := worker.NewPool(2, q, fetcher, ingestor, 4)
		pool.Start(ctx)

		Convey("When Shutdown closes the queue", func() {
			err := pool.Shutdown(ctx)

			Convey("Then it returns cleanly and the results channel closes", func() {
				So(err, ShouldBeNil)
				_, ok := <-pool.Results()
				So(ok, ShouldBeFalse)
			})
		})
	})
}
