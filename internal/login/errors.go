// Package login drives the wtlogin handshake as an explicit state machine.
// The machine builds request bodies and reads responses; the caller owns
// the connection and carries bytes both ways.
package login

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned by Step for an input the current
	// stage does not accept.
	ErrIllegalTransition = errors.New("illegal login transition")

	// ErrNoCredentials is returned when neither a token, a password nor
	// QR login is available.
	ErrNoCredentials = errors.New("no login credentials")

	// ErrQRUnsupported is returned by StartQR for a protocol without QR login.
	ErrQRUnsupported = errors.New("protocol does not support qr login")
)

// Error is a server verdict that did not produce a session. Continuation
// errors wait for user input; the rest are terminal.
type Error struct {
	Code         int
	Message      string
	Continuation bool
	Stage        Stage
}

func (e *Error) Error() string {
	if e.Continuation {
		return fmt.Sprintf("login needs %s (code %d)", e.Stage, e.Code)
	}
	return fmt.Sprintf("login failed: code %d: %s", e.Code, e.Message)
}
