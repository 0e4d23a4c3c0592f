package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Error codes used in typed replies to clients.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// Common errors.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrInvalidInput     = errors.New("invalid input")
	ErrVersionConflict  = errors.New("document version conflict")
	ErrStepApply        = errors.New("step failed to apply")
	ErrHistoryTruncated = errors.New("step history truncated; full reload required")
)

// AppError carries a typed error across protocol boundaries: the websocket
// dispatcher sends it as an error frame, the HTTP layer as a JSON body.
type AppError struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	StatusCode    int                    `json:"status_code,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Protocol      string                 `json:"protocol,omitempty"`
	WebSocketCode int                    `json:"websocket_code,omitempty"`
}

func (e *AppError) Error() string {
	if e.Protocol != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Protocol, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToWebSocketError returns the close code and message for a fatal socket error.
func (e *AppError) ToWebSocketError() (int, string) {
	if e.WebSocketCode != 0 {
		return e.WebSocketCode, e.Message
	}
	switch e.Code {
	case ErrCodeUnauthorized, ErrCodeForbidden, ErrCodeRateLimited:
		return websocket.ClosePolicyViolation, e.Message
	case ErrCodeNotFound:
		return websocket.CloseNormalClosure, e.Message
	default:
		return websocket.CloseInternalServerErr, e.Message
	}
}

// ErrorReply is the wire body of a typed error sent back to the
// originating socket.
type ErrorReply struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebSocketError builds an AppError for the websocket dispatcher.
func NewWebSocketError(wsCode int, code, message string, err error) *AppError {
	details := map[string]interface{}{}
	if err != nil {
		details["original_error"] = err.Error()
	}
	return &AppError{
		Code:          code,
		Message:       message,
		WebSocketCode: wsCode,
		Protocol:      "websocket",
		Details:       details,
	}
}

// NewHTTPError builds an AppError for the HTTP status endpoints.
func NewHTTPError(code, message string, statusCode int, err error) *AppError {
	details := map[string]interface{}{}
	if err != nil {
		details["original_error"] = err.Error()
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Protocol:   "http",
		Details:    details,
	}
}
