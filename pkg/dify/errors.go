package dify

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes carried by every error type in this package.
const (
	CodeDify       = "DIFY_ERROR"
	CodeConfig     = "CONFIG_ERROR"
	CodeValidation = "VALIDATION_ERROR"
)

// Coder is implemented by errors that carry a stable machine readable code.
type Coder interface {
	Code() string
}

// AuthenticationError is returned for HTTP 401. It is never retried.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

func (e *AuthenticationError) Code() string { return CodeDify }

func (e *AuthenticationError) StatusCode() int { return http.StatusUnauthorized }

// RateLimitError is returned for HTTP 429. Streams retry it with exponential backoff.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "API rate limit exceeded"
	}
	return e.Message
}

func (e *RateLimitError) Code() string { return CodeDify }

func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// ServiceError is any other upstream failure: a non-2xx status, or a
// transport failure when Status is zero.
type ServiceError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("dify returned %d: %s", e.Status, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Code() string { return CodeDify }

func (e *ServiceError) StatusCode() int { return e.Status }

// ValidationError rejects caller input before any upstream call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Code() string { return CodeValidation }

// ConfigurationError reports missing or invalid client settings.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

func (e *ConfigurationError) Code() string { return CodeConfig }

// IsAuthentication reports whether err is, or wraps, an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// ErrorCode returns the stable code carried by err, or CodeDify for foreign errors.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeDify
}

func networkError(err error) error {
	return &ServiceError{
		Message: fmt.Sprintf("network error: %v", err),
		Err:     err,
	}
}
