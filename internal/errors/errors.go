// Package errors classifies the failures a download can end with. Every component
// wraps its own error types in a ClassifiedError so the command line can pick an
// exit code and a message for people without inspecting component internals.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeNetwork       ErrorType = "network"       // Exchange unreachable after every retry
	ErrorTypeStatus        ErrorType = "status"        // Exchange answered with a non-200 status
	ErrorTypeParse         ErrorType = "parse"         // Exchange body could not be decoded
	ErrorTypeValidation    ErrorType = "validation"    // Bad user input
	ErrorTypeStorage       ErrorType = "storage"       // Database write failed
	ErrorTypeExport        ErrorType = "export"        // Spreadsheet write failed
	ErrorTypeConfiguration ErrorType = "configuration" // Configuration could not be loaded
	ErrorTypeCanceled      ErrorType = "canceled"      // Context canceled or timed out
	ErrorTypeUnknown       ErrorType = "unknown"       // Unclassified errors
)

// Severity represents the severity level of an error
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ClassifiedError represents an error with metadata for handling decisions
type ClassifiedError struct {
	Err       error     `json:"error"`
	Type      ErrorType `json:"type"`
	Severity  Severity  `json:"severity"`
	Retryable bool      `json:"retryable"`
	Component string    `json:"component"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// New classifies err as errorType on behalf of component.
func New(errorType ErrorType, component, operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      errorType,
		Severity:  severityFor(errorType),
		Retryable: errorType == ErrorTypeNetwork,
		Component: component,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is matches another ClassifiedError of the same type, or anything the wrapped error matches.
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return errors.Is(ce.Err, target)
}

// Classify returns the ClassifiedError inside err, or classifies err from its shape.
func Classify(err error, component, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	return New(classifyErrorType(err), component, operation, err)
}

func classifyErrorType(err error) ErrorType {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

func severityFor(errorType ErrorType) Severity {
	switch errorType {
	case ErrorTypeStorage, ErrorTypeExport:
		return SeverityCritical
	case ErrorTypeConfiguration, ErrorTypeParse:
		return SeverityHigh
	case ErrorTypeValidation, ErrorTypeStatus, ErrorTypeUnknown:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetErrorType extracts the error type from a classified error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	return Classify(err, "", "").Type
}

// GetSeverity extracts the severity from a classified error
func GetSeverity(err error) Severity {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Severity
	}
	return SeverityMedium
}

// UserMessage is the one-line explanation shown to the person running the download.
func UserMessage(err error) string {
	switch GetErrorType(err) {
	case ErrorTypeNetwork:
		return "Cannot connect to Bitfinex, please try again"
	case ErrorTypeStatus:
		return "Bitfinex returned no data for this request, nothing was saved"
	case ErrorTypeParse:
		return "Bitfinex sent data that could not be read, nothing was saved"
	case ErrorTypeValidation:
		return fmt.Sprintf("Invalid input: %v", unwrapClassified(err))
	case ErrorTypeStorage:
		return fmt.Sprintf("Writing to database failed: %v", unwrapClassified(err))
	case ErrorTypeExport:
		return fmt.Sprintf("Writing to Excel failed: %v", unwrapClassified(err))
	case ErrorTypeConfiguration:
		return fmt.Sprintf("Configuration error: %v", unwrapClassified(err))
	case ErrorTypeCanceled:
		return "Download interrupted"
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}

func unwrapClassified(err error) error {
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err
	}
	return err
}
