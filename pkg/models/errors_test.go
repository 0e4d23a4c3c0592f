package models

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	plain := &AppError{Code: ErrCodeConflict, Message: "version mismatch"}
	assert.Equal(t, "CONFLICT: version mismatch", plain.Error())

	tagged := &AppError{Code: ErrCodeConflict, Message: "version mismatch", Protocol: "websocket"}
	assert.Equal(t, "[websocket] CONFLICT: version mismatch", tagged.Error())
}

func TestToWebSocketErrorMapping(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{ErrCodeUnauthorized, websocket.ClosePolicyViolation},
		{ErrCodeForbidden, websocket.ClosePolicyViolation},
		{ErrCodeRateLimited, websocket.ClosePolicyViolation},
		{ErrCodeNotFound, websocket.CloseNormalClosure},
		{ErrCodeInternal, websocket.CloseInternalServerErr},
	}
	for _, tc := range cases {
		e := &AppError{Code: tc.code, Message: "m"}
		code, msg := e.ToWebSocketError()
		assert.Equal(t, tc.want, code, tc.code)
		assert.Equal(t, "m", msg)
	}
}

func TestToWebSocketErrorExplicitCodeWins(t *testing.T) {
	e := &AppError{Code: ErrCodeInternal, Message: "going away", WebSocketCode: websocket.CloseGoingAway}
	code, _ := e.ToWebSocketError()
	assert.Equal(t, websocket.CloseGoingAway, code)
}

func TestNewWebSocketError(t *testing.T) {
	e := NewWebSocketError(websocket.ClosePolicyViolation, ErrCodeRateLimited, "slow down", errors.New("boom"))
	assert.Equal(t, "websocket", e.Protocol)
	assert.Equal(t, websocket.ClosePolicyViolation, e.WebSocketCode)
	require.Contains(t, e.Details, "original_error")
	assert.Equal(t, "boom", e.Details["original_error"])
}

func TestNewHTTPError(t *testing.T) {
	e := NewHTTPError(ErrCodeUnauthorized, "authentication required", 401, ErrUnauthorized)
	assert.Equal(t, "http", e.Protocol)
	assert.Equal(t, 401, e.StatusCode)
	assert.Equal(t, ErrCodeUnauthorized, e.Code)
	assert.Equal(t, ErrUnauthorized.Error(), e.Details["original_error"])

	bare := NewHTTPError(ErrCodeValidation, "bad input", 400, nil)
	assert.Empty(t, bare.Details)
}
