package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a storebot error code.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION_ERROR"    // 400
	ErrInvalidState       ErrorCode = "INVALID_STATE"       // 409
	ErrEmptyAlbum         ErrorCode = "EMPTY_ALBUM"         // 400
	ErrIndexOutOfRange    ErrorCode = "INDEX_OUT_OF_RANGE"  // 400
	ErrPermissionDenied   ErrorCode = "PERMISSION_DENIED"   // 403
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"   // 429
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrTransientDispatch  ErrorCode = "TRANSIENT_DISPATCH"  // 502
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 503
)

// StoreError represents a structured error with code, status, and details.
type StoreError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying infrastructure error, if any.
func (e *StoreError) Unwrap() error {
	return e.cause
}

// NewValidation creates a 400 error for user input that failed a field rule.
// The field name is carried in Details so prompts can annotate the right question.
func NewValidation(field, msg string) *StoreError {
	return &StoreError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NewInvalidState creates a 409 error for an action that does not apply to the current step.
func NewInvalidState(state, action string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidState,
		Status:  409,
		Message: fmt.Sprintf("%s is not allowed while %s", action, state),
		Details: map[string]any{"state": state, "action": action},
	}
}

// NewEmptyAlbum creates a 400 error for finishing the photo phase with no photos.
func NewEmptyAlbum() *StoreError {
	return &StoreError{
		Code:    ErrEmptyAlbum,
		Status:  400,
		Message: "no photos were added",
	}
}

// NewIndexOutOfRange creates a 400 error for a main-image choice outside the album.
func NewIndexOutOfRange(index, size int) *StoreError {
	return &StoreError{
		Code:    ErrIndexOutOfRange,
		Status:  400,
		Message: fmt.Sprintf("image index %d out of range (album has %d)", index, size),
		Details: map[string]any{"index": index, "size": size},
	}
}

// NewPermissionDenied creates a 403 error. Remediation is shown to the user verbatim.
func NewPermissionDenied(msg, remediation string) *StoreError {
	e := &StoreError{
		Code:    ErrPermissionDenied,
		Status:  403,
		Message: msg,
	}
	if remediation != "" {
		e.Details = map[string]any{"remediation": remediation}
	}
	return e
}

// NewNotFound creates a 404 error for a missing entity.
func NewNotFound(kind, identifier string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewCapacityExceeded creates a 429 error when a count limit is reached.
func NewCapacityExceeded(what string, max int) *StoreError {
	return &StoreError{
		Code:    ErrCapacityExceeded,
		Status:  429,
		Message: fmt.Sprintf("%s limit reached (max %d)", what, max),
		Details: map[string]any{"limit": what, "max": max},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *StoreError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &StoreError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// NewTransientDispatch creates a 502 error for a delivery that may succeed on retry.
func NewTransientDispatch(err error) *StoreError {
	msg := "dispatch failed"
	if err != nil {
		msg = fmt.Sprintf("dispatch failed: %v", err)
	}
	return &StoreError{
		Code:    ErrTransientDispatch,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewStorageUnavailable creates a 503 error for a failed persistence call.
func NewStorageUnavailable(err error) *StoreError {
	msg := "storage unavailable"
	if err != nil {
		msg = fmt.Sprintf("storage unavailable: %v", err)
	}
	return &StoreError{
		Code:    ErrStorageUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a StoreError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StoreError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the StoreError in err's chain, if any.
func As(err error) (*StoreError, bool) {
	var sErr *StoreError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// CodeOf returns the code of a StoreError, or ErrInternal for anything else.
func CodeOf(err error) ErrorCode {
	var sErr *StoreError
	if stderrors.As(err, &sErr) {
		return sErr.Code
	}
	return ErrInternal
}

// IsRecoverable reports whether the user can fix the error by answering again.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case ErrValidation, ErrInvalidState, ErrEmptyAlbum, ErrIndexOutOfRange, ErrCapacityExceeded:
		return true
	}
	return false
}

// Remediation returns the user-facing remediation text of a PermissionDenied error.
func Remediation(err error) string {
	var sErr *StoreError
	if stderrors.As(err, &sErr) && sErr.Details != nil {
		if r, ok := sErr.Details["remediation"].(string); ok {
			return r
		}
	}
	return ""
}
