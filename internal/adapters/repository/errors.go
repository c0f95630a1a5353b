package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound = errors.New("not found in store")
	ErrClosed   = errors.New("store closed")
)
