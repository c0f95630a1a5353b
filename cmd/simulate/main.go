// Command simulate drives the pipeline end to end against a generated
// activity stream and prints the calibrated and quality reports for each
// simulated day. It exists so the estimation behavior can be inspected
// without a live content source.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"panelgauge/internal/adapters/source"
	app "panelgauge/internal/app"
	"panelgauge/internal/domain/model"
	"panelgauge/internal/synthetic"
	"panelgauge/pkg/logger"
)

// Default simulation constants. Reported values default to the platform's
// last public disclosure.
const (
	defaultDays        = 14
	defaultCommunities = 10
	defaultAuthors     = 500
	defaultPosts       = 60
	defaultFailEvery   = 0
	defaultSeed        = 1
	defaultReportedDAU = 73_100_000
	defaultTimeout     = 5 * time.Minute
)

func main() {
	var (
		days        = flag.Int("days", defaultDays, "Number of days to simulate")
		communities = flag.Int("communities", defaultCommunities, "Panel size")
		authors     = flag.Int("authors", defaultAuthors, "Shared author pool size")
		posts       = flag.Int("posts", defaultPosts, "Activity records per community per day")
		failEvery   = flag.Int("fail-every", defaultFailEvery, "Make every n-th community fail (0 disables)")
		seed        = flag.Int64("seed", defaultSeed, "Generator seed")
		reportedDAU = flag.Float64("reported-dau", defaultReportedDAU, "Ground-truth DAU supplied after the first day")
		start       = flag.String("start", "2024-06-01", "First simulated day (YYYY-MM-DD)")
	)
	flag.Parse()

	if err := run(*days, *communities, *authors, *posts, *failEvery, *seed, *reportedDAU, *start); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(days, communities, authors, posts, failEvery int, seed int64, reportedDAU float64, start string) error {
	if err := logger.Init(); err != nil {
		return err
	}
	_ = logger.SetLevelString("warn")

	startDay, err := model.ParseDay(start)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	src := source.NewStatic()
	gen := synthetic.New(synthetic.Config{
		Seed:        seed,
		Communities: communities,
		AuthorPool:  authors,
		PostsPerDay: posts,
		Days:        days,
		StartDay:    startDay,
		FailEvery:   failEvery,
		Noise:       true,
	})
	panel := gen.Populate(src)

	svc := app.New(
		app.WithFetcher(source.NewFetcher(src, source.WithRateLimit(1000, 1000))),
		app.WithPanelMembers(panel),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	for d := 0; d < days; d++ {
		day := startDay.Add(d)
		result, err := svc.RunEpoch(ctx, day)
		if err != nil {
			return fmt.Errorf("run day %s: %w", day, err)
		}

		// Calibrate once real attendance exists, so every later day
		// reports absolute estimates.
		if d == 0 && reportedDAU > 0 {
			if _, err := svc.SupplyGroundTruth(ctx, model.MetricDAU, reportedDAU); err != nil {
				return fmt.Errorf("supply ground truth: %w", err)
			}
		}

		printDay(ctx, svc, day, result)
	}
	return nil
}

func printDay(ctx context.Context, svc *app.Service, day model.Day, result *app.EpochResult) {
	fmt.Printf("\n=== %s (run %s) ===\n", day, result.RunID)
	fmt.Printf("communities: %d/%d fetched, %d activity records, %d new facts\n",
		result.CommunitiesFetched, result.CommunitiesAttempted,
		result.ActivityRecords, result.AttendanceFacts)

	rows, err := svc.MetricsReport(ctx, day)
	if err == nil {
		for _, row := range rows {
			if row.Calibrated > 0 {
				fmt.Printf("  %-3s proxy=%8.0f calibrated=%14.0f confidence=%.3f\n",
					row.Metric, row.Proxy, row.Calibrated, row.Confidence)
				continue
			}
			fmt.Printf("  %-3s proxy=%8.0f (uncalibrated)\n", row.Metric, row.Proxy)
		}
	}

	quality, err := svc.QualityReport(ctx)
	if err != nil {
		return
	}
	fmt.Printf("quality: efficiency=%.2f flags=%d\n", quality.CollectionEfficiency, len(quality.Flags))
	for _, f := range quality.Flags {
		fmt.Printf("  [%s] %s\n", f.Kind, f.Detail)
	}
}
