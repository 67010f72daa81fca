package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeUnsupported ErrorType = "unsupported"
	ErrorTypeConversion  ErrorType = "conversion"
	ErrorTypeAPI         ErrorType = "api"
	ErrorTypeRender      ErrorType = "render"
	ErrorTypeArchive     ErrorType = "archive"
	ErrorTypeIO          ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	// StatusCode is the HTTP status returned by the model API, zero otherwise.
	StatusCode int
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func UnsupportedError(message string, err error) *DomainError {
	return NewError(ErrorTypeUnsupported, message, err)
}

func ConversionError(message string, err error) *DomainError {
	return NewError(ErrorTypeConversion, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

// APIStatusError records a non-success HTTP response from the model API.
func APIStatusError(status int, body string) *DomainError {
	e := NewError(ErrorTypeAPI, fmt.Sprintf("API returned status %d: %s", status, body), nil)
	e.StatusCode = status
	return e
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func ArchiveError(message string, err error) *DomainError {
	return NewError(ErrorTypeArchive, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// TypeOf returns the type of the outermost DomainError in err's chain, or ""
// when err carries none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err's chain contains a DomainError of type t.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == t {
			return true
		}
		err = de.Err
	}
	return false
}
