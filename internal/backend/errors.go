package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBackendUnavailable wraps transport failures: connection refused, DNS,
// timeouts, or a response body that could not be read.
var ErrBackendUnavailable = errors.New("backend: unavailable")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("backend: client closed")

// Error is a non-success response from the learning platform, either a
// non-2xx HTTP status or a result envelope carrying a failure code.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}
