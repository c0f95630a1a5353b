package logger_test

import (
	"context"
	"testing"

	"panelgauge/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	ctx := context.Background()

	Convey("Given an initialized global logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("When getting the global logger", func() {
			l := logger.Get()

			Convey("Then it accepts structured fields without panicking", func() {
				So(func() {
					l.Info(ctx, "collection run started",
						logger.String("run_id", "run-1"),
						logger.Int("communities", 10),
						logger.Float64("efficiency", 0.7),
					)
				}, ShouldNotPanic)
			})
		})

		Convey("When deriving a named logger", func() {
			named := logger.Named("ingest")

			Convey("Then it is usable independently", func() {
				So(named, ShouldNotBeNil)
				So(func() { named.Warn(ctx, "fetch failed", logger.String("community", "golang")) }, ShouldNotPanic)
			})
		})

		Convey("When setting levels by name", func() {
			So(logger.SetLevelString("debug"), ShouldBeNil)
			So(logger.SetLevelString("WARNING"), ShouldBeNil)
			So(logger.SetLevelString(""), ShouldBeNil)

			Convey("Then unknown names are rejected", func() {
				So(logger.SetLevelString("loud"), ShouldNotBeNil)
			})
		})

		Convey("When syncing", func() {
			So(logger.Sync(), ShouldBeNil)
		})
	})
}
