// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when a request reaches an authenticated
// endpoint without a valid session.
var ErrNotAuthenticated = errors.New("not authenticated")

// NotFoundError is returned when the upstream API reports 404 for a
// specific resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.Resource)
}

// ForbiddenError is returned when the upstream API reports 403 for a
// specific resource.
type ForbiddenError struct {
	Resource string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access forbidden: %s", e.Resource)
}

// UpstreamError carries the status code and message of a failed upstream
// API call that is neither a 404 nor a 403.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream API error (status %d): %s", e.StatusCode, e.Message)
}
