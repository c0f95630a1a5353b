// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// PanelCommunity is one sampled community declared in configuration.
type PanelCommunity struct {
	Community string `koanf:"community"`
	Category  string `koanf:"category"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address for reports and metrics.
	Addr string `koanf:"addr"`

	// StoreDriver selects the repository backend: memory, badger or postgres.
	StoreDriver string `koanf:"store_driver"`

	// BadgerPath is the on-disk location for the badger backend.
	BadgerPath string `koanf:"badger_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `koanf:"postgres_dsn"`

	// WorkerCount sets the number of fetch workers per run.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory fetch-job queue.
	QueueSize int `koanf:"queue_size"`

	// EpochIntervalMinutes is the scheduled collection cadence.
	EpochIntervalMinutes int `koanf:"epoch_interval_minutes"`

	// FetchTimeoutMS bounds each per-community fetch call.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// RateLimitPerSecond and RateLimitBurst throttle content-source calls.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`

	// Panel is the initial draft panel of sampled communities.
	Panel []PanelCommunity `koanf:"panel"`

	// SourceSeed seeds the built-in synthetic activity feed. A platform
	// client is wired at deployment time; out of the box the service runs
	// against a deterministic generated stream.
	SourceSeed int64 `koanf:"source_seed"`

	// ExcludedAuthors adds handles to the built-in exclusion set.
	ExcludedAuthors []string `koanf:"excluded_authors"`

	// TargetUniverse is the assumed number of active communities platform-wide,
	// used to derive panel coverage for confidence scoring.
	TargetUniverse int `koanf:"target_universe"`

	// ConfidenceHalfLifeDays controls confidence decay with calibration age.
	ConfidenceHalfLifeDays float64 `koanf:"confidence_half_life_days"`

	// Externally reported ground-truth metrics, updated by operators when
	// the platform publishes new disclosures. Never fetched automatically;
	// they seed initial calibration after the first completed run, and MAU
	// is derived as ReportedDAU / DAUMAURatio.
	ReportedDAU float64 `koanf:"reported_dau"`
	ReportedWAU float64 `koanf:"reported_wau"`
	DAUMAURatio float64 `koanf:"dau_mau_ratio"`

	// Quality monitor thresholds.
	MinEfficiency     float64 `koanf:"min_efficiency"`
	TopAuthorK        int     `koanf:"top_author_k"`
	MaxTopAuthorShare float64 `koanf:"max_top_author_share"`
	FactorTolerance   float64 `koanf:"factor_tolerance"`
}

// New creates a Config populated with defaults. Reported metrics default to
// the platform's last public disclosure and are expected to be overridden
// as new figures are published.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9090",
		StoreDriver:          "memory",
		BadgerPath:           "./data/panelgauge",
		WorkerCount:          runtime.NumCPU() * 2,
		QueueSize:            10_000,
		EpochIntervalMinutes: 30,
		FetchTimeoutMS:       10_000,
		RateLimitPerSecond:   5,
		RateLimitBurst:       10,
		Panel: []PanelCommunity{
			{Community: "AskReddit", Category: "general"},
			{Community: "gaming", Category: "entertainment"},
			{Community: "technology", Category: "tech"},
			{Community: "programming", Category: "tech"},
			{Community: "worldnews", Category: "news"},
			{Community: "science", Category: "science"},
			{Community: "personalfinance", Category: "finance"},
			{Community: "movies", Category: "entertainment"},
			{Community: "fitness", Category: "lifestyle"},
			{Community: "askscience", Category: "science"},
		},
		SourceSeed:             1,
		TargetUniverse:         100_000,
		ConfidenceHalfLifeDays: 30,
		ReportedDAU:            73_100_000,
		ReportedWAU:            267_500_000,
		DAUMAURatio:            0.15,
		MinEfficiency:          0.8,
		TopAuthorK:             10,
		MaxTopAuthorShare:      0.5,
		FactorTolerance:        0.25,
	}
}
