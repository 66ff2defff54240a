package common

import "errors"

// ErrPersistenceInconsistency is the one fatal error class: stock was mutated
// without its matching record (or vice versa). It is never recovered locally;
// callers log it and surface it for manual reconciliation.
var ErrPersistenceInconsistency = errors.New("persistence inconsistency")

// AppError carries a machine-readable code and HTTP status alongside the
// underlying error, so handlers can render typed failure reasons.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
