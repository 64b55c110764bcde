package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned when an authenticated call is rejected
	// with HTTP 401. Callers treat it as "log the session out".
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTimeout is returned when a call does not complete within the
	// configured timeout or the caller's deadline.
	ErrTimeout = errors.New("request timed out")
)

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string // the service's "detail" field, when present
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.StatusCode)
}

// TransportError wraps network and decoding failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Detail returns the user-facing message carried by err: the service's
// detail for a StatusError, or fallback for anything else.
func Detail(err error, fallback string) string {
	var se *StatusError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return fallback
}

// parseDetail extracts the "detail" field of an error body. FastAPI style
// services send either a string or a list of validation objects; the latter
// is returned as compact JSON.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
