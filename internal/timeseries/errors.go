package timeseries

import "errors"

// Domain errors for the timeseries package.
var (
	// ErrInvalidKind is returned when a series kind is not recognised.
	ErrInvalidKind = errors.New("timeseries: invalid kind")

	// ErrInvalidSample is returned when a sample cannot be marshalled or
	// carries a zero timestamp.
	ErrInvalidSample = errors.New("timeseries: invalid sample")
)
