package stdio

import (
	"errors"
	"fmt"

	"github.com/okian/revforecast/internal/domain/series"
)

// Error kinds reported in the "error" field of a failed response.
const (
	KindEmptyInput     = "EmptyInput"
	KindMalformedInput = "MalformedInput"
	KindValueError     = "ValueError"
	KindInternal       = "InternalError"
)

// ErrInternal marks failures that are not the caller's fault, including
// recovered panics.
var ErrInternal = errors.New("internal error")

// KindError tags an error with the operation that failed and its wire kind.
type KindError struct {
	Op   string
	Kind string
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// WrapKind wraps err for op, deriving the wire kind from its chain.
func WrapKind(op string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Op: op, Kind: KindOf(err), Err: err}
}

// KindOf maps an error chain to its wire kind.
func KindOf(err error) string {
	var ke *KindError
	switch {
	case errors.As(err, &ke):
		return ke.Kind
	case errors.Is(err, series.ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, series.ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, series.ErrInvalidHorizon):
		return KindValueError
	default:
		return KindInternal
	}
}
