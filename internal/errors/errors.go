package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Snapfood error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrConflict          ErrorCode = "CONFLICT"           // 409
	ErrValidation        ErrorCode = "VALIDATION_ERROR"   // 422
	ErrPersistence       ErrorCode = "PERSISTENCE_ERROR"  // 500
	ErrCorruptSnapshot   ErrorCode = "CORRUPT_SNAPSHOT"   // 500
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrSync              ErrorCode = "SYNC_ERROR"         // 502
	ErrRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE" // 503
)

// SnapError represents a structured error with code, status, and details.
type SnapError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Cause is the underlying error, if any. Never serialized.
	Cause error
}

// Error implements the error interface.
func (e *SnapError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SnapError) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SnapError {
	return &SnapError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a queued scan cannot be found.
func NewNotFound(id string) *SnapError {
	return &SnapError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("scan not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *SnapError {
	return &SnapError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *SnapError {
	return &SnapError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewValidation creates a 422 error for a malformed nutrient profile.
func NewValidation(nutrient, reason string) *SnapError {
	return &SnapError{
		Code:    ErrValidation,
		Status:  422,
		Message: fmt.Sprintf("invalid nutrient %q: %s", nutrient, reason),
		Details: map[string]any{"nutrient": nutrient, "reason": reason},
	}
}

// NewPersistence creates a 500 error for a failed snapshot write.
func NewPersistence(key string, err error) *SnapError {
	msg := "snapshot write failed"
	if err != nil {
		msg = fmt.Sprintf("snapshot write failed: %v", err)
	}
	return &SnapError{
		Code:    ErrPersistence,
		Status:  500,
		Message: msg,
		Details: map[string]any{"key": key},
		Cause:   err,
	}
}

// NewCorruptSnapshot creates a 500 error for an unparsable persisted snapshot.
func NewCorruptSnapshot(key string, err error) *SnapError {
	return &SnapError{
		Code:    ErrCorruptSnapshot,
		Status:  500,
		Message: fmt.Sprintf("corrupt snapshot under %q: %v", key, err),
		Details: map[string]any{"key": key},
		Cause:   err,
	}
}

// NewSync creates a 502 error for a failed remote-sink submission.
func NewSync(id string, err error) *SnapError {
	msg := "remote sink rejected scan"
	if err != nil {
		msg = err.Error()
	}
	return &SnapError{
		Code:    ErrSync,
		Status:  502,
		Message: msg,
		Details: map[string]any{"id": id},
		Cause:   err,
	}
}

// NewRemoteUnreachable creates a 503 error when no remote sink can be reached.
func NewRemoteUnreachable(msg string) *SnapError {
	return &SnapError{
		Code:    ErrRemoteUnreachable,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SnapError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SnapError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// NewCancelled creates a 499 error when the caller cancelled an operation.
func NewCancelled(op string) *SnapError {
	return &SnapError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// Is checks if err (or anything it wraps) is a SnapError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SnapError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the SnapError in err's chain, if any.
func As(err error) (*SnapError, bool) {
	var sErr *SnapError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
