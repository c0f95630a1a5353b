package source

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds reported by content-source calls.
var (
	ErrNotFound    = errors.New("community not found")
	ErrRateLimited = errors.New("rate limited by platform")
	ErrPrivate     = errors.New("community is private")
)

// FetchError wraps a per-community failure. It is recorded and counted but
// never fatal to a collection run.
type FetchError struct {
	Community string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Community, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Reason maps the underlying failure to a stable label for metrics and
// quality reporting.
func (e *FetchError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrNotFound):
		return "not_found"
	case errors.Is(e.Err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(e.Err, ErrPrivate):
		return "private"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
