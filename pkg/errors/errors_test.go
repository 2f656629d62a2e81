package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestNew_RetryableByType(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeKafka, true},
		{ErrorTypeValidation, false},
		{ErrorTypeNode, false},
		{ErrorTypeTelemetry, false},
		{ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			err := New(tt.errorType, "get_info", "failed")
			if err.Retryable != tt.want {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.want)
			}
		})
	}
}

func TestWrap_RetryableByCause(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "node.invalid", IsNotFound: true}

	tests := []struct {
		name      string
		cause     error
		errorType ErrorType
		want      bool
	}{
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), ErrorTypeValidation, true},
		{"connection reset", syscall.ECONNRESET, ErrorTypeInternal, true},
		{"body cut short", io.ErrUnexpectedEOF, ErrorTypeValidation, true},
		{"net error", dnsErr, ErrorTypeInternal, true},
		{"shutdown", context.Canceled, ErrorTypeNetwork, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorTypeNetwork, false},
		{"bad json falls back to type", errors.New("invalid character 'x'"), ErrorTypeValidation, false},
		{"unknown network failure falls back to type", errors.New("boom"), ErrorTypeNetwork, true},
		{"inherits classified cause", New(ErrorTypeValidation, "get_info", "missing field"), ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(tt.cause, tt.errorType, "get_info", "failed")
			if err.Retryable != tt.want {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.want)
			}
			if !errors.Is(err, tt.cause) {
				t.Error("wrapped error should unwrap to its cause")
			}
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrorTypeNetwork, "get_info", "failed") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestServiceError_Error(t *testing.T) {
	err := Wrap(io.EOF, ErrorTypeNetwork, "get_transactions", "failed to reach node")
	want := "get_transactions: failed to reach node (network): EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	plain := New(ErrorTypeNode, "submit_block", "node rejected block")
	if strings.Contains(plain.Error(), "<nil>") {
		t.Errorf("Error() without cause = %q", plain.Error())
	}
}

func TestIsType_SearchesChain(t *testing.T) {
	// Exhausted retries wrap the network failure as internal
	inner := New(ErrorTypeNetwork, "get_info", "unexpected status")
	outer := Wrap(inner, ErrorTypeInternal, "retry", "giving up")

	if !IsType(outer, ErrorTypeInternal) || !IsType(outer, ErrorTypeNetwork) {
		t.Error("IsType should match every classification in the chain")
	}
	if IsType(outer, ErrorTypeNode) {
		t.Error("IsType matched a type that is not in the chain")
	}
	if IsType(errors.New("plain"), ErrorTypeInternal) || IsType(nil, ErrorTypeInternal) {
		t.Error("unclassified errors have no type")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(syscall.ECONNREFUSED) {
		t.Error("unclassified connection refused should be retryable")
	}
	if IsRetryable(errors.New("invalid character")) {
		t.Error("unclassified unknown error should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if !IsRetryable(fmt.Errorf("publish: %w", New(ErrorTypeKafka, "publish", "write failed"))) {
		t.Error("classification should be found through fmt wrapping")
	}
}

func TestOperationAndFields(t *testing.T) {
	inner := New(ErrorTypeNetwork, "get_info", "unexpected status").With("status", 503)
	outer := Wrap(inner, ErrorTypeInternal, "retry", "giving up").With("attempts", 2)

	if Operation(outer) != "retry" {
		t.Errorf("Operation() = %q, want retry", Operation(outer))
	}
	if Operation(errors.New("plain")) != "" {
		t.Error("Operation() of an unclassified error should be empty")
	}

	fields := Fields(outer)
	want := []any{"attempts", 2, "status", 503}
	if fmt.Sprint(fields) != fmt.Sprint(want) {
		t.Errorf("Fields() = %v, want %v", fields, want)
	}
}
