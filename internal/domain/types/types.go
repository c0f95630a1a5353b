// Package types holds read-side shapes returned by the reporting surface.
package types

import "panelgauge/internal/domain/model"

// MetricRow is one calibrated-metrics report line: a tracked metric on a
// given day with its proxy value, the projected absolute estimate and the
// confidence attached to the factor used.
type MetricRow struct {
	Metric     string  `json:"metric"`
	Day        string  `json:"day"`
	Proxy      float64 `json:"proxy_value"`
	Calibrated float64 `json:"calibrated_value"`
	Confidence float64 `json:"confidence"`
}

// MetricRowFrom converts a domain CalibratedMetric into its report shape.
func MetricRowFrom(cm model.CalibratedMetric) MetricRow {
	return MetricRow{
		Metric:     string(cm.Metric),
		Day:        cm.Day.String(),
		Proxy:      cm.Proxy,
		Calibrated: cm.Calibrated,
		Confidence: cm.Confidence,
	}
}

// QualityFlag is one advisory finding raised by the quality monitor.
type QualityFlag struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// StatsRow is the point-in-time pipeline snapshot served at /stats.
type StatsRow struct {
	Started           bool    `json:"started"`
	Epoch             int64   `json:"epoch"`
	WorkerCount       int     `json:"worker_count"`
	QueueSize         int     `json:"queue_size"`
	QueueLength       int     `json:"queue_length"`
	PanelDraft        int     `json:"panel_draft"`
	RetainedDays      int     `json:"retained_days"`
	DedupeSize        int64   `json:"dedupe_size"`
	LastRunID         string  `json:"last_run_id,omitempty"`
	LastRunDay        string  `json:"last_run_day,omitempty"`
	LastRunEfficiency float64 `json:"last_run_efficiency"`
}

// QualityRow is the quality report exposed to operators after every run,
// including runs where collection mostly failed.
type QualityRow struct {
	RunID                string        `json:"run_id"`
	Day                  string        `json:"day"`
	CollectionEfficiency float64       `json:"collection_efficiency"`
	Flags                []QualityFlag `json:"flags"`
}
