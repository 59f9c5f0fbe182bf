package rpc

import (
	"net/http"
)

// Code classifies a failed procedure call.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotSupported Code = "METHOD_NOT_SUPPORTED"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus maps the code to its HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotSupported:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is what a procedure failure looks like on the wire.
type Error struct {
	Code        Code
	Message     string
	FieldErrors map[string][]string
	// Header is copied onto the HTTP response.
	Header http.Header

	cause error
}

func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// ErrorMapper turns a domain error into a wire error. Returning nil leaves the
// error to the router's internal-error fallback.
type ErrorMapper func(err error) *Error

type errorBody struct {
	Code        Code                `json:"code"`
	Message     string              `json:"message"`
	HTTPStatus  int                 `json:"httpStatus"`
	Path        string              `json:"path"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}
