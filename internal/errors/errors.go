// Package errors provides error code definitions for the sync engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code surfaced to callers and logs.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Store errors
	ErrCollectionNotFound ErrorCode = "COLLECTION_NOT_FOUND"

	// Sync errors
	ErrSyncFailed           ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress       ErrorCode = "SYNC_IN_PROGRESS"
	ErrQueueUnavailable     ErrorCode = "QUEUE_UNAVAILABLE"
	ErrRemoteSchemaMismatch ErrorCode = "REMOTE_SCHEMA_MISMATCH"
	ErrTransientNetwork     ErrorCode = "TRANSIENT_NETWORK_ERROR"
	ErrMaxRetriesExceeded   ErrorCode = "MAX_RETRIES_EXCEEDED"

	// Listener errors
	ErrChannelClosed   ErrorCode = "CHANNEL_CLOSED"
	ErrSubscribeFailed ErrorCode = "SUBSCRIBE_FAILED"
	ErrNotSubscribed   ErrorCode = "NOT_SUBSCRIBED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the outermost error code in err's chain, or ErrInternal
// if the chain carries no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
