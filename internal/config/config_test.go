package config_test

import (
	"testing"

	"panelgauge/internal/config"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewDefaults(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg := config.New()

		Convey("Then the ambient defaults are sane", func() {
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.Addr, ShouldNotBeBlank)
			So(cfg.StoreDriver, ShouldEqual, "memory")
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.QueueSize, ShouldBeGreaterThan, 0)
			So(cfg.EpochIntervalMinutes, ShouldBeGreaterThan, 0)
		})

		Convey("Then the reported ground-truth defaults match the last disclosure", func() {
			So(cfg.ReportedDAU, ShouldEqual, 73_100_000)
			So(cfg.ReportedWAU, ShouldEqual, 267_500_000)
			So(cfg.DAUMAURatio, ShouldEqual, 0.15)
		})

		Convey("Then a starter panel is present with categories", func() {
			So(len(cfg.Panel), ShouldBeGreaterThan, 0)
			for _, m := range cfg.Panel {
				So(m.Community, ShouldNotBeBlank)
				So(m.Category, ShouldNotBeBlank)
			}
		})

		Convey("Then quality thresholds default to the monitoring policy", func() {
			So(cfg.MinEfficiency, ShouldEqual, 0.8)
			So(cfg.TopAuthorK, ShouldEqual, 10)
			So(cfg.MaxTopAuthorShare, ShouldEqual, 0.5)
			So(cfg.FactorTolerance, ShouldEqual, 0.25)
		})
	})
}
