package display

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no stage display address has been set.
var ErrNotConfigured = errors.New("display address not configured")

// HTTPError reports a non-2xx response from the stage display.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("display returned HTTP %d", e.StatusCode)
}

// InvalidResponseError reports a malformed or absent HTTP response.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid display response: %s", e.Reason)
}
