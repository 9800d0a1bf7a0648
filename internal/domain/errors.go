package domain

import (
	"errors"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeStore      ErrorCode = "STORE_ERROR"
)

// AppError keeps domain level errors consistent.
// Detail carries the client-facing explanation for validation failures.
type AppError struct {
	Code    ErrorCode
	Message string
	Detail  string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(detail string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: "Validation error", Detail: detail, Status: http.StatusBadRequest}
}

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message, Status: http.StatusNotFound, Err: err}
}

func NewConflictError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message, Status: http.StatusConflict, Err: err}
}

func NewStoreError(err error) *AppError {
	return &AppError{Code: ErrCodeStore, Message: "store error", Status: http.StatusInternalServerError, Err: err}
}

func NewChangeRequestNotFoundError(err error) *AppError {
	return NewNotFoundError("Change request not found", err)
}

func NewTaskNotFoundError(err error) *AppError {
	return NewNotFoundError("Task not found", err)
}

func NewUserReferenceError(err error) *AppError {
	return NewNotFoundError("Referenced user not found", err)
}

func NewEmailExistsError(err error) *AppError {
	return NewConflictError("User with this email already exists", err)
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
