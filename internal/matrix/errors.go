package matrix

import (
	"errors"
	"fmt"
)

// Error is a structured error response from the homeserver. Use errors.As
// or IsError to inspect it.
type Error struct {
	// Code is the Matrix error code, e.g. M_FORBIDDEN.
	Code string `json:"errcode"`
	// Message is the human-readable description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("matrix: %s (%d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard error codes the client reacts to.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
)

// IsError reports whether err is an *Error with the given code.
func IsError(err error, code string) bool {
	var matrixErr *Error
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}
