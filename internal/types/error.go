package types

import (
	"errors"
	"fmt"
)

// Error types reported in the response envelope
const (
	TypeValidation   = "validation"
	TypeAuth         = "auth"
	TypeForbidden    = "forbidden"
	TypeNotFound     = "notFound"
	TypeBackend      = "backend"
	TypeTransport    = "transport"
	TypeUpload       = "upload"
	TypeConfirmation = "confirmation"
)

type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// NewError builds a CustomError
func NewError(code int, message, errorType string) *CustomError {
	return &CustomError{Code: code, Message: message, Type: errorType}
}

// AsCustomError unwraps err to a CustomError when it is one
func AsCustomError(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
