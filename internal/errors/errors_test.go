package errors

import (
	"errors"
	"io"
	"testing"
)

func TestAppErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code string
	}{
		{"validation", NewValidationError("bad view", nil), "VALIDATION_ERROR"},
		{"not found", NewNotFoundError("no session", nil), "NOT_FOUND"},
		{"credential", NewCredentialMissingError("no key"), "API_KEY_MISSING"},
		{"upstream", NewUpstreamError("gemini", io.EOF), "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := NewUpstreamError("gemini call failed", io.ErrUnexpectedEOF)
	wrapped := WrapError(base, "classify garment", ErrorTypeError)

	if !IsUpstreamError(wrapped) {
		t.Error("wrapped upstream error should keep its type")
	}
	if IsValidationError(wrapped) {
		t.Error("upstream error must not report as validation")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("original cause should stay reachable")
	}
}

func TestWrapErrorNil(t *testing.T) {
	if WrapError(nil, "noop", ErrorTypeError) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapPlainError(t *testing.T) {
	err := WrapError(io.EOF, "reading upload", ErrorTypeValidation)
	if !IsValidationError(err) {
		t.Error("plain error should take the requested type")
	}
	if err.Error() != "reading upload: EOF" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
