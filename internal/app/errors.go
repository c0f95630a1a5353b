package service

import "errors"

// Sentinel kinds for orchestration errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrNoCompletedRun = errors.New("no completed collection run")
	ErrNoProxy        = errors.New("no proxy value available for metric")
)
