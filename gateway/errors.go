package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when no health store is configured or the
	// store reports that it cannot serve reads.
	ErrUnavailable = errors.New("health data unavailable")

	// ErrPermissionDenied is returned when the authority has not granted read
	// access to a metric kind.
	ErrPermissionDenied = errors.New("permission not granted")

	// ErrNoData is returned when the store holds no sample for the requested
	// metric and day.
	ErrNoData = errors.New("no data")
)

// QueryError wraps a failure of the underlying health store or permission
// authority. Transient and permanent failures are not distinguished.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %s", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
