package errors

import (
	stderrors "errors"
	"fmt"
)

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Wrap converts err to an AppError: nil stays nil, an AppError found in
// err's chain is returned as is, and any other error becomes an Internal
// error with err as its cause.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

// FormatResourceError creates a NotFound AppError for resource, with id
// formatted as a string in the details.
func FormatResourceError(resource string, id any) *AppError {
	return NotFound(resource, fmt.Sprint(id))
}
