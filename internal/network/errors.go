// Package network multiplexes requests and pushes over one framed TCP
// connection.
package network

import "errors"

var (
	// ErrTimeout is returned to a request whose response did not arrive in time.
	ErrTimeout = errors.New("request timed out")

	// ErrConnClosed fails every pending request when the connection is torn down.
	ErrConnClosed = errors.New("connection closed")

	// ErrTransport wraps socket level failures (dial, read, write).
	ErrTransport = errors.New("transport error")
)
