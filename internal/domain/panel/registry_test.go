package panel_test

import (
	"context"
	"errors"
	"testing"

	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/panel"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty registry", t, func() {
		r := panel.NewRegistry()

		Convey("When registering a community", func() {
			err := r.Register(ctx, model.PanelMember{Community: "golang", Category: "tech"})

			Convey("Then it succeeds and appears in the draft", func() {
				So(err, ShouldBeNil)
				So(r.DraftSize(), ShouldEqual, 1)
			})

			Convey("And registering the same community again fails", func() {
				err := r.Register(ctx, model.PanelMember{Community: "golang", Category: "tech"})
				So(errors.Is(err, panel.ErrDuplicateMember), ShouldBeTrue)
			})
		})
	})

	Convey("Given a registry seeded with members", t, func() {
		r := panel.NewRegistry(panel.WithMembers([]model.PanelMember{
			{Community: "programming", Category: "tech"},
			{Community: "askscience", Category: "science"},
			{Community: "gaming", Category: "entertainment"},
		}))

		Convey("When snapshotting an epoch", func() {
			got := r.Snapshot(ctx, 1)

			Convey("Then the panel is ordered by community id", func() {
				So(got, ShouldHaveLength, 3)
				So(got[0].Community, ShouldEqual, "askscience")
				So(got[1].Community, ShouldEqual, "gaming")
				So(got[2].Community, ShouldEqual, "programming")
			})

			Convey("And members are stamped with the joining epoch", func() {
				So(got[0].JoinedEpoch, ShouldEqual, 1)
			})

			Convey("And a registration after the snapshot does not change it", func() {
				So(r.Register(ctx, model.PanelMember{Community: "news", Category: "news"}), ShouldBeNil)

				again := r.Snapshot(ctx, 1)
				So(again, ShouldHaveLength, 3)

				Convey("But it does take effect at the next epoch", func() {
					next := r.Snapshot(ctx, 2)
					So(next, ShouldHaveLength, 4)
				})
			})

			Convey("And repeated snapshots of the same epoch are identical", func() {
				again := r.Snapshot(ctx, 1)
				So(again, ShouldResemble, got)
			})
		})

		Convey("When asking for a never-snapshotted epoch", func() {
			_, err := r.Frozen(ctx, 42)

			Convey("Then it reports an unknown epoch", func() {
				So(errors.Is(err, panel.ErrUnknownEpoch), ShouldBeTrue)
			})
		})

		Convey("When restoring a persisted snapshot", func() {
			r.Restore(ctx, 7, []model.PanelMember{
				{Community: "zfs", Category: "tech", JoinedEpoch: 7},
				{Community: "aww", Category: "entertainment", JoinedEpoch: 7},
			})

			Convey("Then the snapshot is served as stored, sorted", func() {
				got, err := r.Frozen(ctx, 7)
				So(err, ShouldBeNil)
				So(got[0].Community, ShouldEqual, "aww")
				So(got[1].Community, ShouldEqual, "zfs")
			})

			Convey("And restoring again does not clobber it", func() {
				r.Restore(ctx, 7, []model.PanelMember{{Community: "other"}})
				got, err := r.Frozen(ctx, 7)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
			})
		})
	})
}
