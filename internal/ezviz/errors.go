package ezviz

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by *Error.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrCameraNotFound     = errors.New("camera not found")
	ErrInvalidDirection   = errors.New("invalid ptz direction")
)

// Error is returned by every failing client call.
type Error struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "ezviz " + e.Op
	if e.Code != 0 {
		msg += fmt.Sprintf(": code %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
