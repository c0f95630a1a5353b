package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"panelgauge/internal/adapters/repository"
	"panelgauge/internal/domain/model"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestBadger(t *testing.T) *repository.BadgerStore {
	t.Helper()
	store, err := repository.NewBadgerStore("", repository.WithInMemory())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory badger store", t, func() {
		store := newTestBadger(t)

		Convey("When the same attendance fact is appended twice", func() {
			facts := []model.AttendanceFact{{Author: "alice", Day: "2024-06-01"}}
			So(store.AppendAttendance(ctx, facts), ShouldBeNil)
			So(store.AppendAttendance(ctx, facts), ShouldBeNil)

			Convey("Then the day set holds the author once", func() {
				authors, err := store.DaySet(ctx, "2024-06-01")
				So(err, ShouldBeNil)
				So(authors, ShouldResemble, []string{"alice"})
			})
		})

		Convey("When facts span several days", func() {
			So(store.AppendAttendance(ctx, []model.AttendanceFact{
				{Author: "alice", Day: "2024-05-31"},
				{Author: "bob", Day: "2024-06-01"},
				{Author: "bob", Day: "2024-06-02"},
				{Author: "carol", Day: "2024-06-03"},
			}), ShouldBeNil)

			Convey("Then DayRange scans exactly the inclusive range", func() {
				got, err := store.DayRange(ctx, "2024-06-01", "2024-06-02")
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got["2024-06-01"], ShouldResemble, []string{"bob"})
				So(got["2024-06-02"], ShouldResemble, []string{"bob"})
			})
		})

		Convey("When activity records are appended", func() {
			at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
			err := store.AppendActivity(ctx, 7, []model.ActivityRecord{
				{Author: "alice", Community: "golang", Kind: model.KindPost, Timestamp: at},
				{Author: "alice", Community: "golang", Kind: model.KindComment, Timestamp: at},
			})

			Convey("Then the write succeeds even for same-author records", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When a panel snapshot is saved and read back", func() {
			members := []model.PanelMember{
				{Community: "golang", Category: "tech", JoinedEpoch: 7},
				{Community: "homelab", Category: "tech", JoinedEpoch: 7},
			}
			So(store.SavePanel(ctx, 7, members), ShouldBeNil)

			got, err := store.Panel(ctx, 7)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, members)

			Convey("Then a missing epoch reports ErrNotFound", func() {
				_, err := store.Panel(ctx, 8)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When calibration factors are appended for two metrics", func() {
			now := time.Now().UTC().Truncate(time.Second)
			dau := model.CalibrationFactor{
				Metric: model.MetricDAU, Reported: 73.1e6, Proxy: 1512,
				Factor: 48346.56, Confidence: 0.9,
				Cause: model.CauseNewGroundTruth, ComputedAt: now,
			}
			wau := dau
			wau.Metric = model.MetricWAU
			wau.Factor = 176917.99

			So(store.AppendFactor(ctx, dau), ShouldBeNil)
			So(store.AppendFactor(ctx, wau), ShouldBeNil)

			Convey("Then each metric sees only its own log", func() {
				log, err := store.Factors(ctx, model.MetricDAU)
				So(err, ShouldBeNil)
				So(log, ShouldHaveLength, 1)
				So(log[0].Factor, ShouldEqual, 48346.56)
			})
		})

		Convey("When activity and factors share the sequence counter", func() {
			at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
			So(store.AppendActivity(ctx, 1, []model.ActivityRecord{
				{Author: "alice", Community: "golang", Kind: model.KindPost, Timestamp: at},
			}), ShouldBeNil)
			So(store.AppendFactor(ctx, model.CalibrationFactor{
				Metric: model.MetricDAU, Factor: 100,
			}), ShouldBeNil)

			Convey("Then the factor log is intact", func() {
				log, err := store.Factors(ctx, model.MetricDAU)
				So(err, ShouldBeNil)
				So(log, ShouldHaveLength, 1)
			})
		})

		Convey("When the store is closed", func() {
			So(store.Close(), ShouldBeNil)

			Convey("Then further writes fail with ErrClosed", func() {
				err := store.AppendAttendance(ctx, []model.AttendanceFact{{Author: "a", Day: "2024-06-01"}})
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})

			Convey("Then closing again is a no-op", func() {
				So(store.Close(), ShouldBeNil)
			})
		})
	})
}

func TestBadgerStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	factor := func(f float64) model.CalibrationFactor {
		return model.CalibrationFactor{
			Metric: model.MetricDAU, Reported: 73.1e6, Factor: f,
			Cause: model.CauseNewGroundTruth, ComputedAt: time.Now().UTC(),
		}
	}

	Convey("Given a store reopened after appending two factors, appending a third keeps all of them", t, func() {
		store, err := repository.NewBadgerStore(dir)
		So(err, ShouldBeNil)

		So(store.AppendFactor(ctx, factor(100)), ShouldBeNil)
		So(store.AppendFactor(ctx, factor(200)), ShouldBeNil)
		So(store.AppendAttendance(ctx, []model.AttendanceFact{
			{Author: "alice", Day: "2024-06-01"},
		}), ShouldBeNil)
		So(store.Close(), ShouldBeNil)

		reopened, err := repository.NewBadgerStore(dir)
		So(err, ShouldBeNil)
		t.Cleanup(func() { _ = reopened.Close() })

		So(reopened.AppendFactor(ctx, factor(300)), ShouldBeNil)

		log, err := reopened.Factors(ctx, model.MetricDAU)
		So(err, ShouldBeNil)
		So(log, ShouldHaveLength, 3)
		So(log[0].Factor, ShouldEqual, 100)
		So(log[1].Factor, ShouldEqual, 200)
		So(log[2].Factor, ShouldEqual, 300)

		authors, err := reopened.DaySet(ctx, "2024-06-01")
		So(err, ShouldBeNil)
		So(authors, ShouldResemble, []string{"alice"})
	})
}
