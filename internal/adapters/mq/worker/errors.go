package worker

import "errors"

// ErrIngest marks a job whose fetch succeeded but whose records could not
// be persisted. Unlike a fetch failure, storage trouble is fatal to the
// surrounding run.
var ErrIngest = errors.New("ingest failed")
