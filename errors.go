package cityflow

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoRoute is returned when destination is unreachable under allowed modes
	ErrNoRoute = errors.New("no route")
	// ErrTimeout is returned when search exceeds its expansion or time budget
	ErrTimeout = errors.New("route search budget exceeded")
	// ErrSnapshotInconsistency signals that snapshot arrays do not match its graph. It is a defect, not an input error.
	ErrSnapshotInconsistency = errors.New("snapshot inconsistency")
	// ErrUnknownNode is returned when trip endpoint is not present in the graph
	ErrUnknownNode = errors.New("unknown node")
	// ErrStateNotFound is returned by state stores for empty slots
	ErrStateNotFound = errors.New("state not found")
)

// ValidationError is returned for edits or inputs which would break graph invariants
type ValidationError struct {
	Edit   *Edit
	Reason string
}

func (err *ValidationError) Error() string {
	if err.Edit == nil {
		return fmt.Sprintf("validation failed: %s", err.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", err.Edit, err.Reason)
}

func newValidationError(edit *Edit, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Edit:   edit,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsValidationError reports whether err (or any error it wraps) is a *ValidationError
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
