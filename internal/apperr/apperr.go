// Package apperr defines the service error taxonomy shared by all components.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error kind.
type Code string

const (
	CodeMissingSignature    Code = "MISSING_SIGNATURE"
	CodeSignatureMismatch   Code = "SIGNATURE_MISMATCH"
	CodeMalformedProfile    Code = "MALFORMED_PROFILE"
	CodeInsufficientCredit  Code = "INSUFFICIENT_CREDIT"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeRejectedByPolicy    Code = "REJECTED_BY_POLICY"
	CodeExtractionFailed    Code = "EXTRACTION_FAILED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeInternal            Code = "INTERNAL"
)

// ServiceError carries a stable kind plus human-readable detail. The wrapped
// cause is only exposed to clients in development mode.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// Is matches two service errors by code so errors.Is works across wrapping.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// WithDetails attaches a diagnostic key/value pair and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// MissingSignature indicates the signed payload had no hash field at all.
func MissingSignature() *ServiceError {
	return newError(CodeMissingSignature, http.StatusUnauthorized, "signed payload missing signature", nil)
}

// SignatureMismatch indicates the recomputed digest did not match the supplied hash.
func SignatureMismatch() *ServiceError {
	return newError(CodeSignatureMismatch, http.StatusUnauthorized, "signature verification failed", nil)
}

// MalformedProfile indicates the user field of a verified payload was not valid JSON.
func MalformedProfile(cause error) *ServiceError {
	return newError(CodeMalformedProfile, http.StatusUnauthorized, "identity profile is malformed", cause)
}

// InsufficientCredit is returned when a debit is attempted on an empty balance.
// The balance is always reported as 0; negative balances are never exposed.
func InsufficientCredit() *ServiceError {
	return newError(CodeInsufficientCredit, http.StatusForbidden, "not enough credits", nil).
		WithDetails("credits_left", 0)
}

// ProviderUnavailable is surfaced after retry exhaustion on transient failures.
func ProviderUnavailable(cause error) *ServiceError {
	return newError(CodeProviderUnavailable, http.StatusBadGateway, "generation provider unreachable", cause)
}

// RejectedByPolicy indicates the provider declined the request on content grounds.
func RejectedByPolicy(reason string) *ServiceError {
	return newError(CodeRejectedByPolicy, http.StatusUnprocessableEntity, "generation rejected by content policy", nil).
		WithDetails("reason", reason)
}

// ExtractionFailed indicates the provider responded but no artifact could be located.
func ExtractionFailed(detail string) *ServiceError {
	return newError(CodeExtractionFailed, http.StatusBadGateway, "provider response contained no artifact", nil).
		WithDetails("response", detail)
}

// Unauthorized is the generic authentication failure.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// RateLimited indicates the per-identity rate limit was exceeded.
func RateLimited() *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "too many requests", nil)
}

// BadRequest indicates a client-side request shape problem.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// Get extracts a *ServiceError from an error chain, or nil.
func Get(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
