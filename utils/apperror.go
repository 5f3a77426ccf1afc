package utils

import (
	"fmt"
	"net/http"
)

// AppError is an expected, client facing failure. Anything else reaching the
// error handler is treated as a programming or infrastructure error.
type AppError struct {
	StatusCode    int
	Status        string
	Message       string
	IsOperational bool
	Err           error
}

func NewAppError(statusCode int, message string) *AppError {
	status := "error"
	if statusCode >= 400 && statusCode < 500 {
		status = "fail"
	}
	return &AppError{
		StatusCode:    statusCode,
		Status:        status,
		Message:       message,
		IsOperational: true,
	}
}

func WrapAppError(statusCode int, message string, err error) *AppError {
	e := NewAppError(statusCode, message)
	e.Err = err
	return e
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, message)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, message)
}
