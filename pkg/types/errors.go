package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing is returned when a required credential is not
	// configured. It is never retried.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrSigningRejected is returned when every signing variant and request
	// shape was tried without a valid response.
	ErrSigningRejected = errors.New("upstream rejected all signing variants")

	// ErrUpstreamMalformed is returned when a response could not be parsed or
	// matched against any known shape.
	ErrUpstreamMalformed = errors.New("upstream response malformed")

	// ErrInvalidRange is returned for a date range that is reversed or longer
	// than the configured cap.
	ErrInvalidRange = errors.New("invalid range")
)

// APIError is an error reported by the telemetry provider in the response
// body.
type APIError struct {
	Op      string
	Errno   int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: provider error %d", e.Op, e.Errno)
	}
	return fmt.Sprintf("%s: provider error %d: %s", e.Op, e.Errno, e.Message)
}
