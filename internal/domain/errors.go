package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, client-visible error classification.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION"
	CodeAuth       ErrorCode = "AUTH"
	CodeConflict   ErrorCode = "CONFLICT"
	CodeRateLimit  ErrorCode = "RATE_LIMIT"
	CodeTimeout    ErrorCode = "TIMEOUT"
	CodeNetwork    ErrorCode = "NETWORK"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeParse      ErrorCode = "PARSE_ERROR"
	CodeProvider   ErrorCode = "PROVIDER_ERROR"
	CodeAborted    ErrorCode = "ABORTED"
	CodeInternal   ErrorCode = "INTERNAL"
)

// Error is a categorized error carrying a stable code.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a categorized error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: defaultRetryable(code)}
}

// WrapError categorizes an existing error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: defaultRetryable(code), Cause: cause}
}

// ProviderError wraps one adapter's failure with the originating provider and operation.
type ProviderError struct {
	Provider  string
	Operation string
	Code      ErrorCode
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s failed (%s): %v", e.Provider, e.Operation, e.Code, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause, inheriting its code when it is already categorized.
func NewProviderError(provider, operation string, cause error) *ProviderError {
	var existing *ProviderError
	if errors.As(cause, &existing) && existing.Provider == provider {
		return existing
	}

	code := CodeProvider
	retryable := true
	var categorized *Error
	switch {
	case errors.As(cause, &categorized):
		code = categorized.Code
		retryable = categorized.Retryable
	case errors.Is(cause, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(cause, context.Canceled):
		code = CodeAborted
		retryable = false
	}

	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Code:      code,
		Retryable: retryable,
		Cause:     cause,
	}
}

// CodeForStatus maps an upstream HTTP status to an error code.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= http.StatusInternalServerError:
		return CodeProvider
	case status >= http.StatusBadRequest:
		return CodeValidation
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error code to the status used before streaming begins.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeParse:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeProvider, CodeNetwork:
		return http.StatusBadGateway
	case CodeAborted:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

func defaultRetryable(code ErrorCode) bool {
	switch code {
	case CodeRateLimit, CodeTimeout, CodeNetwork, CodeProvider:
		return true
	default:
		return false
	}
}

// AsError converts any error to *Error, preserving provider context in the message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var ee *ExhaustedError
	if errors.As(err, &ee) && ee.Last != nil {
		last := AsError(ee.Last)
		return &Error{Code: last.Code, Message: ee.Error(), Retryable: last.Retryable, Cause: err}
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return &Error{Code: pe.Code, Message: pe.Error(), Retryable: pe.Retryable, Cause: err}
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(CodeTimeout, "", err)
	case errors.Is(err, context.Canceled):
		return WrapError(CodeAborted, "", err)
	default:
		return WrapError(CodeInternal, "", err)
	}
}

// CodeOf returns the error code of err, INTERNAL when uncategorized.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return AsError(err).Retryable
}

// Outcome is the tagged result of one provider attempt.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

// Classify turns an attempt's error into an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsRetryable(err):
		return OutcomeTransient
	default:
		return OutcomePermanent
	}
}
