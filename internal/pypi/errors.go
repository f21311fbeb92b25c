package pypi

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel wrapped by NotFoundError so callers can use
// errors.Is without caring which lookup failed.
var ErrNotFound = errors.New("project not found")

// NotFoundError reports a project the upstream registry does not know.
type NotFoundError struct {
	Package string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pypi: project %q not found upstream", e.Package)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StatusError reports an unexpected upstream HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pypi: upstream returned %d for %s", e.StatusCode, e.URL)
}
