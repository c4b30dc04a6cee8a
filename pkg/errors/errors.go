package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int    // Custom error code, see constants below
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

const (
	ErrValidation         = 1001
	ErrNotFound           = 1002
	ErrUnknownItem        = 1003
	ErrAuctionClosed      = 1004
	ErrAlreadyClosed      = 1005
	ErrBusy               = 1006
	ErrTransport          = 1007
	ErrInvalidToken       = 1008
	ErrInvalidCredentials = 1009
	ErrBadMessageFormat   = 1010
	ErrUnknownMessageType = 1011

	ErrInternalServer = 500
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an error with a code and a user-facing message.
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code int, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a message to an underlying error, keeping its code if it
// already is an AppError.
func Wrap(err error, message string) *AppError {
	code := ErrInternalServer
	var appErr *AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// WrapCode is Wrap with an explicit code.
func WrapCode(code int, err error, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of err, or ErrInternalServer for plain errors.
func CodeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// ToJSON renders the error as a websocket error frame.
func (e *AppError) ToJSON() []byte {
	frame := struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{Type: "error", Code: e.Code, Message: e.Message}

	b, err := json.Marshal(frame)
	if err != nil {
		return []byte(`{"type":"error","message":"internal server error"}`)
	}
	return b
}

// HTTPStatus maps error codes to HTTP status codes for the REST layer.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrValidation, ErrBadMessageFormat:
		return http.StatusBadRequest
	case ErrNotFound, ErrUnknownItem:
		return http.StatusNotFound
	case ErrAuctionClosed, ErrAlreadyClosed:
		return http.StatusConflict
	case ErrBusy:
		return http.StatusServiceUnavailable
	case ErrInvalidToken, ErrInvalidCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
