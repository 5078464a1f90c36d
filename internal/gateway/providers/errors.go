package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureReason categorizes why a provider call failed. The gateway uses
// it to decide between retrying, moving to the next candidate, and
// marking a connection invalid.
type FailureReason string

const (
	// ReasonAuth indicates authentication failure (HTTP 401, 403).
	ReasonAuth FailureReason = "auth"

	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit FailureReason = "rate_limit"

	// ReasonTimeout indicates a deadline was exceeded.
	ReasonTimeout FailureReason = "timeout"

	// ReasonServerError indicates server-side issues (HTTP 5xx).
	ReasonServerError FailureReason = "server_error"

	// ReasonInvalidRequest indicates client-side issues (HTTP 400).
	ReasonInvalidRequest FailureReason = "invalid_request"

	// ReasonModelUnavailable indicates the model is missing or unloaded.
	ReasonModelUnavailable FailureReason = "model_unavailable"

	// ReasonTransport indicates a network-level failure.
	ReasonTransport FailureReason = "transport"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown FailureReason = "unknown"
)

// ProviderError is a structured failure from one model backend. The
// candidate loop records it and moves on; auth errors additionally mark
// the owning connection invalid.
type ProviderError struct {
	// Reason categorizes the failure.
	Reason FailureReason

	// Provider is the provider tag.
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status, when applicable.
	Status int

	// Message is the human-readable description.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsAuth reports whether err is a provider authentication failure.
func IsAuth(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Reason == ReasonAuth
}

// NewError builds a ProviderError classified from cause.
func NewError(provider, model string, cause error) *ProviderError {
	e := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = Classify(cause)
	}
	return e
}

// WithStatus attaches the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatus(status)
	return e
}

// Classify determines the failure reason from error content.
func Classify(err error) FailureReason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ReasonAuth
	case strings.Contains(msg, "model not found"), strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "not loaded"):
		return ReasonModelUnavailable
	case strings.Contains(msg, "internal server"), strings.Contains(msg, "server error"),
		strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return ReasonServerError
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return ReasonTransport
	default:
		return ReasonUnknown
	}
}

func classifyStatus(status int) FailureReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}
