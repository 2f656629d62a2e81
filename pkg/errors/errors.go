// Package errors classifies failures of node, sink and broker calls so callers can decide
// whether to retry, fail fast or give up on the current mining attempt.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorType is the broad category of a failure
type ErrorType string

const (
	// ErrorTypeNetwork covers failures to reach the node or a sink and non-2xx reads
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeValidation covers malformed or incomplete payloads
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNode is the node refusing a block
	ErrorTypeNode ErrorType = "node"
	// ErrorTypeTelemetry covers InfluxDB and Redis failures
	ErrorTypeTelemetry ErrorType = "telemetry"
	// ErrorTypeKafka covers event publishing failures
	ErrorTypeKafka ErrorType = "kafka"
	// ErrorTypeTimeout is a call that ran out of time
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal is everything else, including exhausted retries
	ErrorTypeInternal ErrorType = "internal"
)

// ServiceError is a classified failure of one named operation
type ServiceError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	// Fields are slog-style key/value pairs describing the call
	Fields    []any
	Retryable bool
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s)", e.Operation, e.Message, e.Type)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the cause
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// With appends a key/value pair to the error's fields
func (e *ServiceError) With(key string, value any) *ServiceError {
	e.Fields = append(e.Fields, key, value)
	return e
}

// New creates an error with no cause. Retryability follows the type.
func New(errorType ErrorType, operation, message string) *ServiceError {
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Retryable: retryableType(errorType),
	}
}

// Wrap classifies err under operation. A nil err gives nil.
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Retryable: retryableCause(err, errorType),
	}
}

func retryableType(t ErrorType) bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeKafka:
		return true
	default:
		return false
	}
}

// retryableCause decides from the cause first and falls back to the type.
// Cancellation is never retried; transport failures always are.
func retryableCause(err error, t ErrorType) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return retryableType(t)
}

// IsType reports whether any ServiceError in err's chain has the given type
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var se *ServiceError
		if !errors.As(err, &se) {
			return false
		}
		if se.Type == errorType {
			return true
		}
		err = se.Cause
	}
	return false
}

// IsRetryable reports whether the outermost ServiceError allows a retry.
// Unclassified errors are judged by their cause.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return err != nil && retryableCause(err, ErrorTypeInternal)
}

// Operation returns the operation of the outermost ServiceError, or ""
func Operation(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Operation
	}
	return ""
}

// Fields returns the fields of every ServiceError in err's chain, outermost first
func Fields(err error) []any {
	var fields []any
	for err != nil {
		var se *ServiceError
		if !errors.As(err, &se) {
			break
		}
		fields = append(fields, se.Fields...)
		err = se.Cause
	}
	return fields
}
