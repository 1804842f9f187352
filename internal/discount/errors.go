package discount

import "errors"

// Errors returned by discount detection.
var (
	// ErrUnsorted is returned when price intervals are not sorted by Start ASC.
	ErrUnsorted = errors.New("price intervals not sorted by start")

	// ErrNoFeatures is returned by Categorize when there is nothing to split.
	ErrNoFeatures = errors.New("no discount features")
)
