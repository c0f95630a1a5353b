package panel

import "errors"

// Sentinel kinds for panel registry errors.
var (
	ErrDuplicateMember = errors.New("community already registered in panel")
	ErrUnknownEpoch    = errors.New("no panel snapshot for epoch")
)
