package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"panelgauge/internal/adapters/http/api"
	"panelgauge/internal/adapters/repository"
	"panelgauge/internal/adapters/source"
	app "panelgauge/internal/app"
	"panelgauge/internal/config"
	"panelgauge/internal/domain/calibrate"
	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/quality"
	"panelgauge/internal/synthetic"
	"panelgauge/pkg/logger"
	"panelgauge/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection; the pipeline exposes its own
	// registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		return
	}

	members := panelMembers(cfg)

	// The built-in feed is the deterministic synthetic stream; a real
	// platform client replaces it at deployment time.
	src := source.NewStatic()
	synthetic.New(synthetic.Config{
		Seed:     cfg.SourceSeed,
		Days:     model.MetricMAU.Window(),
		StartDay: model.DayOf(time.Now()),
		Noise:    true,
	}).PopulateFor(src, members)

	fetcher := source.NewFetcher(src,
		source.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		source.WithCallTimeout(time.Duration(cfg.FetchTimeoutMS)*time.Millisecond),
	)

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithFetcher(fetcher),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithPanelMembers(members),
		app.WithExcludedAuthors(cfg.ExcludedAuthors),
		app.WithTargetUniverse(cfg.TargetUniverse),
		app.WithCalibrationOptions(
			calibrate.WithHalfLife(cfg.ConfidenceHalfLifeDays),
		),
		app.WithQualityOptions(
			quality.WithMinEfficiency(cfg.MinEfficiency),
			quality.WithTopAuthorShare(cfg.TopAuthorK, cfg.MaxTopAuthorShare),
			quality.WithFactorTolerance(cfg.FactorTolerance),
		),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	go runScheduler(ctx, svc, time.Duration(cfg.EpochIntervalMinutes)*time.Minute, reportedDefaults(cfg), log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// reportedDefaults maps the configured ground-truth disclosures to initial
// calibration inputs. The platform discloses DAU, WAU and a DAU/MAU ratio
// rather than MAU itself, so MAU is derived from the ratio.
func reportedDefaults(cfg *config.Config) map[model.Metric]float64 {
	reported := map[model.Metric]float64{
		model.MetricDAU: cfg.ReportedDAU,
		model.MetricWAU: cfg.ReportedWAU,
	}
	if cfg.DAUMAURatio > 0 {
		reported[model.MetricMAU] = cfg.ReportedDAU / cfg.DAUMAURatio
	}
	return reported
}

// runScheduler drives one collection run per epoch interval. Each run
// covers the current UTC day; re-running a day only adds unseen authors.
// After the first completed run the configured disclosures seed calibration
// for any metric without persisted factors, so reports carry absolute
// estimates before an operator posts fresher ground truth.
func runScheduler(ctx context.Context, svc *app.Service, interval time.Duration, reported map[model.Metric]float64, log logger.Logger) {
	seeded := false
	run := func() {
		day := model.DayOf(time.Now())
		if _, err := svc.RunEpoch(ctx, day); err != nil {
			log.Error(ctx, "collection run failed",
				logger.String("day", day.String()), logger.Error(err))
			return
		}
		if seeded {
			return
		}
		if err := svc.SeedGroundTruth(ctx, reported); err != nil {
			log.Warn(ctx, "seeding configured ground truth failed", logger.Error(err))
			return
		}
		seeded = true
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// openStore builds the configured repository backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "badger":
		return repository.NewBadgerStore(cfg.BadgerPath)
	case "postgres":
		return repository.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return repository.NewMemoryStore(), nil
	}
}

// panelMembers converts the configured panel into domain members.
func panelMembers(cfg *config.Config) []model.PanelMember {
	members := make([]model.PanelMember, 0, len(cfg.Panel))
	for _, p := range cfg.Panel {
		members = append(members, model.PanelMember{
			Community: p.Community,
			Category:  p.Category,
		})
	}
	return members
}
