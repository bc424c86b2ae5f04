package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a storysync error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrOffline        ErrorCode = "OFFLINE"         // 408
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrNoCredential   ErrorCode = "NO_CREDENTIAL"   // 401
	ErrStoreFailed    ErrorCode = "STORE_FAILED"    // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrUpstream       ErrorCode = "UPSTREAM"        // 502
)

// EdgeError represents a structured error with code, status, and details.
type EdgeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *EdgeError {
	return &EdgeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a story cannot be found in the local store.
func NewNotFound(identifier string) *EdgeError {
	return &EdgeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("story not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing local file (e.g. a photo to attach).
func NewFileNotFound(path string) *EdgeError {
	return &EdgeError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewOffline creates a 408 error for requests that cannot be completed without the network.
func NewOffline(msg string) *EdgeError {
	return &EdgeError{
		Code:    ErrOffline,
		Status:  408,
		Message: msg,
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *EdgeError {
	return &EdgeError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewNoCredential creates a 401 error when no view context supplied an auth token.
func NewNoCredential(reason string) *EdgeError {
	return &EdgeError{
		Code:    ErrNoCredential,
		Status:  401,
		Message: fmt.Sprintf("no credential available: %s", reason),
	}
}

// NewStoreFailed creates a 500 error for local store failures.
func NewStoreFailed(op string, err error) *EdgeError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &EdgeError{
		Code:    ErrStoreFailed,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op},
	}
}

// NewUpstream creates a 502 error when the remote API answered with something unusable.
func NewUpstream(status int, msg string) *EdgeError {
	return &EdgeError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"upstream_status": status},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The caller-facing message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *EdgeError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &EdgeError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is an EdgeError with the given code.
// Wrapped errors are unwrapped.
func Is(err error, code ErrorCode) bool {
	var eErr *EdgeError
	if stderrors.As(err, &eErr) {
		return eErr.Code == code
	}
	return false
}
