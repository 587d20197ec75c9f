package ordering

import "errors"

// Error taxonomy shared by every layer that reorders or transfers entities.
// Callers classify with errors.Is; wrapped errors carry the detail.
var (
	// ErrNotFound indicates a source or destination id is absent from the
	// expected group or list.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates a malformed move descriptor.
	ErrBadRequest = errors.New("bad request")

	// ErrTransient indicates a retryable failure writing to or reading from
	// the persistence gateway.
	ErrTransient = errors.New("transient failure")
)

// IsRetryable reports whether err is safe to retry as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
