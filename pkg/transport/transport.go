package transport

import (
	"context"
	"io"
	"net"
	"strings"
	"time"
)

// Kind identifies the transport provider behind a connection.
type Kind int

const (
	KindUnknown Kind = iota
	KindQUIC
	KindTCP
	KindMem
	KindWinPipe
)

func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindTCP:
		return "tcp"
	case KindMem:
		return "mem"
	case KindWinPipe:
		return "winpipe"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quic":
		return KindQUIC
	case "tcp":
		return KindTCP
	case "mem", "inproc":
		return KindMem
	case "winpipe", "pipe":
		return KindWinPipe
	default:
		return KindUnknown
	}
}

// Stream is one duplex byte stream within a Conn. Its halves close
// independently: CloseWrite signals end of stream to the peer while reads
// continue; Close releases both halves and unblocks pending reads.
type Stream interface {
	io.ReadWriteCloser
	CloseWrite() error
	SetReadDeadline(t time.Time) error
}

// StreamOpener opens new streams on an established connection.
type StreamOpener interface {
	// OpenStream fails if the connection is closed or the peer refuses
	// new streams.
	OpenStream(ctx context.Context) (Stream, error)
}

// StreamAcceptor yields streams opened by the peer.
type StreamAcceptor interface {
	// AcceptStream returns io.EOF once the peer closed the connection
	// cleanly, and another error when the connection failed.
	AcceptStream(ctx context.Context) (Stream, error)
}

// Conn is a transport session able to host many independent streams. All
// streams share the session's handshake and trust context.
type Conn interface {
	StreamOpener
	StreamAcceptor
	Kind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	// Close tears down the connection and every stream on it.
	Close() error
}

// ConnOpener establishes outbound connections. Failures are *ConnectError.
type ConnOpener interface {
	Open(ctx context.Context, address string) (Conn, error)
}

// ConnAcceptor yields inbound connections. A failure of the listening
// resource itself is an *AcceptError; the acceptor must then be recreated.
type ConnAcceptor interface {
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the acceptor and unblocks Accept.
	Close() error
}

// Transport builds connections of one Kind.
type Transport interface {
	ConnOpener
	Kind() Kind
	// Listen starts accepting connections on address (provider-specific format).
	Listen(ctx context.Context, address string) (ConnAcceptor, error)
}
