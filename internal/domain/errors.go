package domain

import "github.com/pkg/errors"

var (
	// ErrNetwork marks a catalog or status store that was unreachable or
	// answered with a non-2xx status.
	ErrNetwork = errors.New("network failure")
	// ErrNotAuthenticated is returned when a write is attempted without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrValidation marks input that cannot be interpreted at all.
	// Out-of-range numbers are clamped instead.
	ErrValidation = errors.New("validation failure")
	ErrNotFound   = errors.New("not found")
	// ErrSuperseded is returned for a result that belongs to a selection
	// that is no longer active.
	ErrSuperseded = errors.New("superseded")
)

// NetworkError wraps err with msg and marks it as ErrNetwork. Both the
// marker and err stay reachable through errors.Is and errors.As.
func NetworkError(err error, msg string) error {
	return errors.Wrap(&kindError{kind: ErrNetwork, err: err}, msg)
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }
