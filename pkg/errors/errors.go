// Package errors provides the structured error system for stratacache with
// error codes, categories, and retryability hints.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies a class of cache failure.
type ErrorCode string

const (
	// Configuration errors, fatal at construction time.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Codec errors.
	ErrCodeCodecMismatch       ErrorCode = "CODEC_MISMATCH"
	ErrCodeSerializationFailed ErrorCode = "SERIALIZATION_FAILED"

	// Tier resource errors.
	ErrCodeInsufficientSpace ErrorCode = "INSUFFICIENT_SPACE"

	// Remote store errors, degraded-but-recoverable from the caller's view.
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeKeyNotFound       ErrorCode = "KEY_NOT_FOUND"
	ErrCodeFlushFailed       ErrorCode = "FLUSH_FAILED"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups codes for logging and metrics.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCodec         ErrorCategory = "codec"
	CategoryResource      ErrorCategory = "resource"
	CategoryRemote        ErrorCategory = "remote"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError is a structured error with code, category, and context.
type CacheError struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`
	Component string            `json:"component,omitempty"`
	Retryable bool              `json:"retryable"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches on error code.
func (e *CacheError) Is(target error) bool {
	if other, ok := target.(*CacheError); ok {
		return e.Code == other.Code
	}
	return false
}

// New creates a CacheError with category and retryability derived from the
// code.
func New(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryableByDefault(code),
	}
}

// Newf creates a CacheError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return New(code, fmt.Sprintf(format, args...))
}

// WithCause attaches the underlying error.
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// WithComponent tags the originating component.
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithContext adds a contextual key/value pair.
func (e *CacheError) WithContext(key, value string) *CacheError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeCodecMismatch, ErrCodeSerializationFailed:
		return CategoryCodec
	case ErrCodeInsufficientSpace:
		return CategoryResource
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeKeyNotFound, ErrCodeFlushFailed:
		return CategoryRemote
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeFlushFailed, ErrCodeInternalError:
		return true
	default:
		return false
	}
}
