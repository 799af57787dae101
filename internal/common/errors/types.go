// Package errors provides the typed error taxonomy used across the
// courier. Every failure class the transport can hit maps to one type so
// callers and tests can branch on IsType instead of string matching.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConnection represents network-level failures (refused
	// connections, timeouts, DNS, TLS)
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeSerialization represents envelope serialization failures
	ErrTypeSerialization ErrorType = "serialization"
	// ErrTypeCapacity represents queue-full rejections
	ErrTypeCapacity ErrorType = "capacity"
	// ErrTypeRateLimit represents server-imposed throttling
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: msg,
		Cause:   cause,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// SerializationError creates a new serialization error
func SerializationError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeSerialization,
		Message: msg,
		Cause:   cause,
	}
}

// CapacityError creates a new capacity error
func CapacityError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeCapacity,
		Message: msg,
	}
}

// RateLimitError creates a new rate limit error
func RateLimitError(category string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit active for category %q", category),
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
