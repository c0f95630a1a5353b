package calibrate

import "errors"

// Sentinel kinds for calibration errors.
var (
	ErrInvalidCalibrationInput = errors.New("invalid calibration input")
	ErrUnknownMetric           = errors.New("unknown metric")
)
