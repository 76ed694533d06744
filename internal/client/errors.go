package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/davidbz/studygate/internal/domain"
)

// Error is a failed call, classified with the gateway's error codes.
type Error struct {
	Code    domain.ErrorCode
	Method  string
	Path    string
	Message string

	// Status is 0 when no response was received.
	Status int

	// ServerVersion is the server's updatedAt value on CONFLICT.
	ServerVersion string

	// RetryAfter is the server's Retry-After hint, 0 when absent.
	RetryAfter time.Duration

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))

	if e.Method != "" {
		fmt.Fprintf(&b, " %s %s", e.Method, e.Path)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": http %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Code {
	case domain.CodeRateLimit, domain.CodeTimeout, domain.CodeNetwork, domain.CodeProvider:
		return true
	default:
		return false
	}
}

// AsError extracts *Error.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the code of a client error, "" for other errors.
func CodeOf(err error) domain.ErrorCode {
	if ce, ok := AsError(err); ok {
		return ce.Code
	}
	return ""
}

// ConflictVersion returns the server version carried by a CONFLICT error.
func ConflictVersion(err error) (string, bool) {
	ce, ok := AsError(err)
	if !ok || ce.Code != domain.CodeConflict {
		return "", false
	}
	return ce.ServerVersion, true
}

func statusMessage(status int, body errorBody) string {
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return http.StatusText(status)
}

// errorBody covers the gateway's error payload and the conflict payload.
type errorBody struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Error        string `json:"error"`
	UpdatedAt    string `json:"updatedAt"`
	UpdatedAtAlt string `json:"updated_at"`
}

func (b errorBody) version() string {
	if b.UpdatedAt != "" {
		return b.UpdatedAt
	}
	return b.UpdatedAtAlt
}
