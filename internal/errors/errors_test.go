package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestLensError_Error(t *testing.T) {
	err := &LensError{
		Code:    ErrInvalidInput,
		Message: "path is required",
	}

	expected := "INVALID_INPUT: path is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewCostLimitExceeded(t *testing.T) {
	err := NewCostLimitExceeded("calls", 10, 1, 10)

	if err.Code != ErrCostLimitExceeded {
		t.Errorf("Code = %q, want %q", err.Code, ErrCostLimitExceeded)
	}
	if err.Details["dimension"] != "calls" {
		t.Errorf("Details[dimension] = %v, want calls", err.Details["dimension"])
	}
	if err.Details["over_by"] != 1 {
		t.Errorf("Details[over_by] = %v, want 1", err.Details["over_by"])
	}
	if err.Details["max"] != 10 {
		t.Errorf("Details[max] = %v, want 10", err.Details["max"])
	}
}

func TestNewCaptureNoFirstFrame(t *testing.T) {
	err := NewCaptureNoFirstFrame(5000)

	if err.Code != ErrCaptureNoFirstFrame {
		t.Errorf("Code = %q, want %q", err.Code, ErrCaptureNoFirstFrame)
	}
	if err.Details["waited_ms"] != int64(5000) {
		t.Errorf("Details[waited_ms] = %v, want 5000", err.Details["waited_ms"])
	}
}

func TestNewCaptureEngine(t *testing.T) {
	err := NewCaptureEngine("disk full")

	if err.Code != ErrCaptureEngine {
		t.Errorf("Code = %q, want %q", err.Code, ErrCaptureEngine)
	}
	if err.Details["reason"] != "disk full" {
		t.Errorf("Details[reason] = %v, want %q", err.Details["reason"], "disk full")
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestUnwrap_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := NewAnalysisService(cause)

	if !stderrors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{
			name: "matching code",
			err:  NewInvalidInput("bad"),
			code: ErrInvalidInput,
			want: true,
		},
		{
			name: "different code",
			err:  NewInvalidInput("bad"),
			code: ErrInternal,
			want: false,
		},
		{
			name: "wrapped lens error",
			err:  fmt.Errorf("analyze: %w", NewCancelledByUser()),
			code: ErrAnalysisCancelledByUser,
			want: true,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			code: ErrInternal,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: ErrInternal,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCancelledByUser(t *testing.T) {
	if !IsCancelledByUser(NewCancelledByUser()) {
		t.Errorf("IsCancelledByUser(NewCancelledByUser()) = false, want true")
	}
	if IsCancelledByUser(NewAnalysisService(fmt.Errorf("x"))) {
		t.Errorf("IsCancelledByUser(service error) = true, want false")
	}
}
