package series

import "errors"

// Sentinel error kinds for request input. They are never recovered by the
// fallback chain; they surface to the caller as a failed response.
var (
	ErrEmptyInput     = errors.New("empty historical data")
	ErrMalformedInput = errors.New("malformed input")
	ErrInvalidHorizon = errors.New("invalid horizon")
)
