package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Lens error code.
type ErrorCode string

const (
	ErrCaptureStartFailed       ErrorCode = "CAPTURE_START_FAILED"
	ErrCaptureNoFirstFrame      ErrorCode = "CAPTURE_NO_FIRST_FRAME"
	ErrCaptureEngine            ErrorCode = "CAPTURE_ENGINE_ERROR"
	ErrStatusChannelUnavailable ErrorCode = "STATUS_CHANNEL_UNAVAILABLE" // logged, never returned to callers
	ErrAnalysisCancelledByUser  ErrorCode = "ANALYSIS_CANCELLED_BY_USER" // not a failure
	ErrAnalysisService          ErrorCode = "ANALYSIS_SERVICE_ERROR"
	ErrCostLimitExceeded        ErrorCode = "COST_LIMIT_EXCEEDED"
	ErrInvalidInput             ErrorCode = "INVALID_INPUT"
	ErrInvalidState             ErrorCode = "INVALID_STATE"
	ErrInternal                 ErrorCode = "INTERNAL"
)

// LensError represents a structured error with code, message, and details.
type LensError struct {
	Code    ErrorCode
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *LensError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LensError) Unwrap() error {
	return e.cause
}

// NewCaptureStartFailed is returned when the capture engine rejects a start request.
func NewCaptureStartFailed(err error) *LensError {
	return &LensError{
		Code:    ErrCaptureStartFailed,
		Message: fmt.Sprintf("capture did not start: %v", err),
		cause:   err,
	}
}

// NewCaptureNoFirstFrame is returned when no frame arrives within the first-frame bound.
func NewCaptureNoFirstFrame(waitedMs int64) *LensError {
	return &LensError{
		Code:    ErrCaptureNoFirstFrame,
		Message: fmt.Sprintf("capture did not start: no frame captured within %dms", waitedMs),
		Details: map[string]any{"waited_ms": waitedMs},
	}
}

// NewCaptureEngine wraps a capture engine failure reason.
func NewCaptureEngine(reason string) *LensError {
	return &LensError{
		Code:    ErrCaptureEngine,
		Message: fmt.Sprintf("capture engine error: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewStatusChannelUnavailable describes a companion process that could not be reached.
func NewStatusChannelUnavailable(err error) *LensError {
	return &LensError{
		Code:    ErrStatusChannelUnavailable,
		Message: fmt.Sprintf("status channel unavailable: %v", err),
		cause:   err,
	}
}

// NewCancelledByUser is returned when the user cancels analysis from the overlay.
func NewCancelledByUser() *LensError {
	return &LensError{
		Code:    ErrAnalysisCancelledByUser,
		Message: "analysis cancelled by user",
	}
}

// NewAnalysisService wraps a remote understanding-service failure.
func NewAnalysisService(err error) *LensError {
	return &LensError{
		Code:    ErrAnalysisService,
		Message: fmt.Sprintf("analysis service error: %v", err),
		cause:   err,
	}
}

// NewCostLimitExceeded reports which budget dimension an increment would break.
func NewCostLimitExceeded(dimension string, current, attempted, max int) *LensError {
	over := current + attempted - max
	return &LensError{
		Code:    ErrCostLimitExceeded,
		Message: fmt.Sprintf("%s limit exceeded: %d + %d > %d (over by %d)", dimension, current, attempted, max, over),
		Details: map[string]any{
			"dimension": dimension,
			"current":   current,
			"attempted": attempted,
			"max":       max,
			"over_by":   over,
		},
	}
}

// NewInvalidInput creates an error for missing or malformed input.
func NewInvalidInput(msg string) *LensError {
	return &LensError{
		Code:    ErrInvalidInput,
		Message: msg,
	}
}

// NewInvalidState is returned when an operation does not apply to the current state.
func NewInvalidState(op, state string) *LensError {
	return &LensError{
		Code:    ErrInvalidState,
		Message: fmt.Sprintf("cannot %s while %s", op, state),
		Details: map[string]any{"op": op, "state": state},
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *LensError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LensError{
		Code:    ErrInternal,
		Message: msg,
		cause:   err,
	}
}

// As returns the first LensError in err's chain.
func As(err error) (*LensError, bool) {
	var lErr *LensError
	if stderrors.As(err, &lErr) {
		return lErr, true
	}
	return nil, false
}

// Is checks if err (or anything it wraps) is a LensError with the given code.
func Is(err error, code ErrorCode) bool {
	if lErr, ok := As(err); ok {
		return lErr.Code == code
	}
	return false
}

// IsCancelledByUser reports whether err is the user-cancel outcome.
func IsCancelledByUser(err error) bool {
	return Is(err, ErrAnalysisCancelledByUser)
}
