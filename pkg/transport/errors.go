package transport

import (
	"errors"
	"fmt"
	"io"
)

// ErrClosed is returned by operations on a closed acceptor or connection.
var ErrClosed = errors.New("transport: closed")

// ConnectError reports a failed outbound connection: unreachable host,
// handshake or TLS failure, timeout.
type ConnectError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect %s: %v", e.Kind, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AcceptError reports that a listening resource became unusable.
type AcceptError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("%s: accept on %s: %v", e.Kind, e.Address, e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }

// IsConnEnded reports whether err from AcceptStream means the connection
// ended cleanly rather than failed.
func IsConnEnded(err error) bool { return errors.Is(err, io.EOF) }
