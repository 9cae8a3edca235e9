package external

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures from external services
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindTimeout        ErrorKind = "timeout"
	KindValidation     ErrorKind = "validation"
	KindNetwork        ErrorKind = "network"
	KindOther          ErrorKind = "other"
)

// ErrTrialNotFound is returned when the registry has no record for an NCT id
var ErrTrialNotFound = errors.New("trial not found")

// snippetLimit bounds the response-body excerpt carried on errors
const snippetLimit = 200

// bodySnippet truncates a response body for error reporting
func bodySnippet(body []byte) string {
	if len(body) > snippetLimit {
		return string(body[:snippetLimit])
	}
	return string(body)
}

// RegistryError represents a classified failure from the trials registry
type RegistryError struct {
	Kind       ErrorKind
	Status     int
	Snippet    string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *RegistryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("registry %s error (status %d): %s", e.Kind, e.Status, e.Snippet)
	}
	if e.Err != nil {
		return fmt.Sprintf("registry %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("registry %s error", e.Kind)
}

// Unwrap exposes the underlying cause
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// LLMError represents a classified failure from the inference service
type LLMError struct {
	Kind       ErrorKind
	Status     int
	Snippet    string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *LLMError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Kind, e.Status, e.Snippet)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm %s error", e.Kind)
}

// Unwrap exposes the underlying cause
func (e *LLMError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is a non-retryable credential failure
func IsAuthenticationError(err error) bool {
	var le *LLMError
	if errors.As(err, &le) {
		return le.Kind == KindAuthentication
	}
	return false
}

// IsRateLimitError reports whether err is a rate-limit rejection from either service
func IsRateLimitError(err error) bool {
	var re *RegistryError
	if errors.As(err, &re) && re.Kind == KindRateLimit {
		return true
	}
	var le *LLMError
	if errors.As(err, &le) && le.Kind == KindRateLimit {
		return true
	}
	return false
}
