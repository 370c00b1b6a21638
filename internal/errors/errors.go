package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a problemtrack error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrSubmissionInFlight  ErrorCode = "SUBMISSION_IN_FLIGHT"  // 409
	ErrPayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"     // 413
	ErrEmptyFeedback       ErrorCode = "EMPTY_FEEDBACK"        // 422
	ErrInternal            ErrorCode = "INTERNAL"              // 500
	ErrIntakeFailed        ErrorCode = "INTAKE_FAILED"         // 502
	ErrIntakeNotConfigured ErrorCode = "INTAKE_NOT_CONFIGURED" // 503
)

// TrackError represents a structured error with code, status, and details.
type TrackError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TrackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TrackError {
	return &TrackError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing session, template or attachment.
func NewNotFound(what, identifier string) *TrackError {
	return &TrackError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", what, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSubmissionInFlight creates a 409 error when a form session is already submitting.
func NewSubmissionInFlight(sessionID string) *TrackError {
	return &TrackError{
		Code:    ErrSubmissionInFlight,
		Status:  409,
		Message: "a submission is already in progress for this form",
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewPayloadTooLarge creates a 413 error when uploaded attachments exceed the limit.
func NewPayloadTooLarge(maxMB int) *TrackError {
	return &TrackError{
		Code:    ErrPayloadTooLarge,
		Status:  413,
		Message: fmt.Sprintf("attachments exceed maximum upload size of %d MB", maxMB),
		Details: map[string]any{"max_upload_mb": maxMB},
	}
}

// NewEmptyFeedback creates a 422 error when a feedback message is blank.
func NewEmptyFeedback() *TrackError {
	return &TrackError{
		Code:    ErrEmptyFeedback,
		Status:  422,
		Message: "Please write your feedback before sending.",
	}
}

// NewIntakeFailed creates a 502 error when the intake endpoint cannot be reached
// or answers with a non-success status.
func NewIntakeFailed(status int, cause error) *TrackError {
	details := map[string]any{}
	if status > 0 {
		details["upstream_status"] = status
	}
	if cause != nil {
		details["cause"] = cause.Error()
	}
	return &TrackError{
		Code:    ErrIntakeFailed,
		Status:  502,
		Message: "Error sending data. Please try again.",
		Details: details,
	}
}

// NewIntakeNotConfigured creates a 503 error when no intake URL is configured.
func NewIntakeNotConfigured() *TrackError {
	return &TrackError{
		Code:    ErrIntakeNotConfigured,
		Status:  503,
		Message: "intake_url is not configured",
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TrackError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TrackError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TrackError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TrackError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// As extracts a TrackError from err, wrapping anything else as INTERNAL.
func As(err error) *TrackError {
	var tErr *TrackError
	if stderrors.As(err, &tErr) {
		return tErr
	}
	return NewInternal(err)
}
