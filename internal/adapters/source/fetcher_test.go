package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"panelgauge/internal/adapters/source"
	"panelgauge/internal/domain/model"
	"panelgauge/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func raw(author, kind string, at time.Time) source.Activity {
	return source.Activity{Author: author, Kind: kind, CreatedAt: at}
}

func TestFetcher(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 1)

	Convey("Given a scripted source with one community", t, func() {
		src := source.NewStatic()
		src.Add("golang",
			raw("alice", "post", since.Add(1*time.Hour)),
			raw("bob", "comment", since.Add(2*time.Hour)),
			raw("carol", "post", since.Add(3*time.Hour)),
			raw("dave", "link", since.Add(4*time.Hour)),     // unknown kind
			raw("early", "post", since.Add(-1*time.Hour)),   // before range
			raw("late", "comment", until.Add(1*time.Minute)), // after range
		)
		f := source.NewFetcher(src, source.WithRateLimit(1000, 1000))

		Convey("When fetching the range", func() {
			records, err := f.Fetch(ctx, "golang", since, until)

			Convey("Then only in-range, known-kind records are normalized", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 3)
				for _, rec := range records {
					So(rec.Community, ShouldEqual, "golang")
					So(rec.Timestamp.Location(), ShouldEqual, time.UTC)
				}
				So(records[0].Kind, ShouldEqual, model.KindPost)
			})
		})

		Convey("When the listing spans multiple pages", func() {
			paged := source.NewStatic(source.WithPageSize(2))
			for i := 0; i < 7; i++ {
				paged.Add("golang", raw("author", "post", since.Add(time.Duration(i)*time.Minute)))
			}
			pf := source.NewFetcher(paged, source.WithRateLimit(1000, 1000))

			records, err := pf.Fetch(ctx, "golang", since, until)

			Convey("Then all pages are drained", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 7)
			})
		})
	})

	Convey("Given a community that fails", t, func() {
		src := source.NewStatic()
		src.Fail("private_club", source.ErrPrivate)
		src.Fail("ghost_town", source.ErrNotFound)
		src.Fail("busy", source.ErrRateLimited)
		f := source.NewFetcher(src, source.WithRateLimit(1000, 1000))

		Convey("When fetching it", func() {
			_, err := f.Fetch(ctx, "private_club", since, until)

			Convey("Then the failure is a typed FetchError", func() {
				var fe *source.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Community, ShouldEqual, "private_club")
				So(errors.Is(err, source.ErrPrivate), ShouldBeTrue)
			})
		})

		Convey("Then failure reasons map to stable labels", func() {
			for community, want := range map[string]string{
				"private_club": "private",
				"ghost_town":   "not_found",
				"busy":         "rate_limited",
			} {
				_, err := f.Fetch(ctx, community, since, until)
				var fe *source.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Reason(), ShouldEqual, want)
			}
		})
	})

	Convey("Given a cancelled context", t, func() {
		src := source.NewStatic()
		src.Add("golang", raw("alice", "post", since.Add(time.Hour)))
		f := source.NewFetcher(src, source.WithRateLimit(1000, 1000))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("When fetching", func() {
			_, err := f.Fetch(cancelled, "golang", since, until)

			Convey("Then the call fails instead of blocking", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
