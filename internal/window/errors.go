package window

import "errors"

// Errors returned by Analyze.
var (
	// ErrMixedBounds is returned when one bound is a day offset and the other an absolute time.
	ErrMixedBounds = errors.New("window bounds must both be day offsets or both absolute")

	// ErrInvalidRange is returned when bounds do not straddle the event date.
	ErrInvalidRange = errors.New("window bounds do not straddle event date")

	// ErrUnsorted is returned when points are not sorted by timestamp ASC.
	ErrUnsorted = errors.New("points not sorted by timestamp")

	// ErrInvalidBinSize is returned for a negative bin size.
	ErrInvalidBinSize = errors.New("bin size must be positive")

	// ErrMissingRankInput is returned when rank analysis is requested without price intervals.
	ErrMissingRankInput = errors.New("rank analysis requested without price intervals")
)
