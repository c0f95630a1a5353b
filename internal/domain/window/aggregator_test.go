package window_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/window"

	. "github.com/smartystreets/goconvey/convey"
)

func fact(author string, day model.Day) model.AttendanceFact {
	return model.AttendanceFact{Author: author, Day: day}
}

func TestAggregatorUniqueCount(t *testing.T) {
	ctx := context.Background()
	day1 := model.Day("2024-06-01")
	day2 := day1.Add(1)
	day3 := day1.Add(2)

	Convey("Given an aggregator with three days of attendance", t, func() {
		// alice active on day 1 and day 3, bob on day 2 only.
		a := window.NewAggregator()
		So(a.Record(ctx, fact("alice", day1)), ShouldBeTrue)
		So(a.Record(ctx, fact("bob", day2)), ShouldBeTrue)
		So(a.Record(ctx, fact("alice", day3)), ShouldBeTrue)

		Convey("Then the 1-day count equals the day's set size", func() {
			n, err := a.UniqueCount(ctx, 1, day2)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("Then wider windows union the day-sets instead of summing", func() {
			// alice appears on two days inside the window but counts once.
			n7, err := a.UniqueCount(ctx, 7, day3)
			So(err, ShouldBeNil)
			So(n7, ShouldEqual, 2)

			n30, err := a.UniqueCount(ctx, 30, day3)
			So(err, ShouldBeNil)
			So(n30, ShouldEqual, 2)
		})

		Convey("Then counts are monotonic in window size", func() {
			n1, _ := a.UniqueCount(ctx, 1, day3)
			n7, _ := a.UniqueCount(ctx, 7, day3)
			n30, _ := a.UniqueCount(ctx, 30, day3)
			So(n1, ShouldBeLessThanOrEqualTo, n7)
			So(n7, ShouldBeLessThanOrEqualTo, n30)
		})

		Convey("Then a day with no activity contributes an empty set", func() {
			n, err := a.UniqueCount(ctx, 1, day3.Add(5))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			n7, err := a.UniqueCount(ctx, 7, day3.Add(5))
			So(err, ShouldBeNil)
			So(n7, ShouldEqual, 2) // day1 falls out, day2 and day3 remain
		})

		Convey("Then unsupported windows are rejected", func() {
			_, err := a.UniqueCount(ctx, 14, day3)
			So(errors.Is(err, window.ErrUnsupportedWindow), ShouldBeTrue)
		})
	})
}

func TestAggregatorIdempotence(t *testing.T) {
	ctx := context.Background()
	day := model.Day("2024-06-01")

	Convey("Given an aggregator", t, func() {
		a := window.NewAggregator()

		Convey("When the same fact is recorded twice", func() {
			first := a.Record(ctx, fact("alice", day))
			second := a.Record(ctx, fact("alice", day))

			Convey("Then the second insert is a no-op", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)

				n, err := a.UniqueCount(ctx, 1, day)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When many goroutines merge overlapping facts", func() {
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						a.Record(ctx, fact(fmt.Sprintf("author-%d", i), day))
					}
				}()
			}
			wg.Wait()

			Convey("Then the union is merge-order independent", func() {
				n, err := a.UniqueCount(ctx, 1, day)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 100)
			})
		})
	})
}

func TestAggregatorCompaction(t *testing.T) {
	ctx := context.Background()
	asOf := model.Day("2024-06-30")
	old := asOf.Add(-35)
	inside := asOf.Add(-10)

	Convey("Given day-sets inside and outside the largest window", t, func() {
		a := window.NewAggregator()
		a.Record(ctx, fact("ancient-1", old))
		a.Record(ctx, fact("ancient-2", old))
		a.Record(ctx, fact("alice", inside))

		Convey("When compacting as of the newest day", func() {
			n := a.Compact(ctx, asOf)

			Convey("Then only days outside the 30-day window are compacted", func() {
				So(n, ShouldEqual, 1)
				So(a.RetainedDays(), ShouldEqual, 1)
			})

			Convey("Then 1-day counts still answer from the summary", func() {
				got, err := a.UniqueCount(ctx, 1, old)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, 2)
			})

			Convey("Then wider windows over compacted membership fail loudly", func() {
				_, err := a.UniqueCount(ctx, 7, old)
				So(errors.Is(err, window.ErrCompacted), ShouldBeTrue)
			})

			Convey("Then raw membership for compacted days is gone", func() {
				So(a.Authors(ctx, old), ShouldBeNil)
				So(a.Authors(ctx, inside), ShouldHaveLength, 1)
			})

			Convey("Then current windows are unaffected", func() {
				got, err := a.UniqueCount(ctx, 30, asOf)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, 1)
			})
		})
	})
}

func TestAggregatorSeed(t *testing.T) {
	ctx := context.Background()
	day := model.Day("2024-06-01")

	Convey("Given persisted attendance restored into a fresh aggregator", t, func() {
		a := window.NewAggregator()
		a.Seed(ctx, day, []string{"alice", "bob", "alice"})

		Convey("Then seeding is idempotent like recording", func() {
			n, err := a.UniqueCount(ctx, 1, day)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
		})
	})
}
