package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"panelgauge/internal/config"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given no file or environment overrides", t, func() {
		os.Unsetenv("PANELGAUGE_CONFIG")

		Convey("When loading", func() {
			cfg, err := config.Load(ctx)

			Convey("Then defaults are returned", func() {
				So(err, ShouldBeNil)
				So(cfg.StoreDriver, ShouldEqual, "memory")
				So(cfg.ReportedDAU, ShouldEqual, 73_100_000)
			})
		})
	})

	Convey("Given environment overrides", t, func() {
		os.Setenv("PANELGAUGE_ADDR", ":9191")
		os.Setenv("PANELGAUGE_LOG_LEVEL", "debug")
		os.Setenv("PANELGAUGE_TOP_AUTHOR_K", "25")
		defer func() {
			os.Unsetenv("PANELGAUGE_ADDR")
			os.Unsetenv("PANELGAUGE_LOG_LEVEL")
			os.Unsetenv("PANELGAUGE_TOP_AUTHOR_K")
		}()

		Convey("When loading", func() {
			cfg, err := config.Load(ctx)

			Convey("Then env values win over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9191")
				So(cfg.LogLevel, ShouldEqual, "debug")
				So(cfg.TopAuthorK, ShouldEqual, 25)
			})
		})
	})

	Convey("Given a YAML config file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "panelgauge.yaml")
		yaml := []byte("addr: \":7070\"\nstore_driver: badger\nbadger_path: /tmp/pg-test\nreported_dau: 80000000\n")
		So(os.WriteFile(path, yaml, 0o600), ShouldBeNil)

		os.Setenv("PANELGAUGE_CONFIG", path)
		defer os.Unsetenv("PANELGAUGE_CONFIG")

		Convey("When loading", func() {
			cfg, err := config.Load(ctx)

			Convey("Then file values layer over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.StoreDriver, ShouldEqual, "badger")
				So(cfg.ReportedDAU, ShouldEqual, 80_000_000)
			})

			Convey("And env still wins over the file", func() {
				os.Setenv("PANELGAUGE_ADDR", ":6060")
				defer os.Unsetenv("PANELGAUGE_ADDR")

				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
			})
		})
	})

	Convey("Given a missing config file", t, func() {
		os.Setenv("PANELGAUGE_CONFIG", "/nonexistent/panelgauge.yaml")
		defer os.Unsetenv("PANELGAUGE_CONFIG")

		Convey("When loading", func() {
			_, err := config.Load(ctx)

			Convey("Then a load error is reported", func() {
				So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
			})
		})
	})

	Convey("Given invalid values", t, func() {
		Convey("When the store driver is unknown", func() {
			os.Setenv("PANELGAUGE_STORE_DRIVER", "etcd")
			defer os.Unsetenv("PANELGAUGE_STORE_DRIVER")

			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When postgres is selected without a DSN", func() {
			os.Setenv("PANELGAUGE_STORE_DRIVER", "postgres")
			defer os.Unsetenv("PANELGAUGE_STORE_DRIVER")

			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the addr is blanked out", func() {
			os.Setenv("PANELGAUGE_ADDR", "")
			defer os.Unsetenv("PANELGAUGE_ADDR")

			// An empty env value still overrides; validation rejects it.
			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
