package window

import "errors"

// Sentinel kinds for aggregator errors.
var (
	ErrUnsupportedWindow = errors.New("unsupported window length")
	ErrCompacted         = errors.New("day-set membership compacted away")
)
