// Package apperr defines errors that carry their API status and code.
package apperr

import "net/http"

// Error is a sentinel with a fixed API representation. Compare with errors.Is.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// New builds an API error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// NotFound builds a 404 API error.
func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

// Conflict builds a 409 API error.
func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}
