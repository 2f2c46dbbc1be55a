// Package mux turns a single net.Conn into a multi-stream transport.Conn
// using yamux. The tcp, mem and winpipe providers are built on it.
package mux

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/transport"
)

var aLongTimeAgo = time.Unix(1, 0)

// Options tunes the stream multiplexer. Zero values keep yamux defaults.
type Options struct {
	AcceptBacklog       int
	KeepAliveInterval   time.Duration
	DisableKeepAlive    bool
	MaxStreamWindowSize uint32
	StreamOpenTimeout   time.Duration
	// Logger receives multiplexer diagnostics; defaults to zap.L().
	Logger *zap.Logger
}

func (o Options) yamuxConfig() (*yamux.Config, error) {
	cfg := yamux.DefaultConfig()
	if o.AcceptBacklog > 0 {
		cfg.AcceptBacklog = o.AcceptBacklog
	}
	if o.KeepAliveInterval > 0 {
		cfg.KeepAliveInterval = o.KeepAliveInterval
	}
	cfg.EnableKeepAlive = !o.DisableKeepAlive
	if o.MaxStreamWindowSize > 0 {
		cfg.MaxStreamWindowSize = o.MaxStreamWindowSize
	}
	if o.StreamOpenTimeout > 0 {
		cfg.StreamOpenTimeout = o.StreamOpenTimeout
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.L()
	}
	cfg.LogOutput = nil
	cfg.Logger = zap.NewStdLog(logger.Named("yamux"))
	if err := yamux.VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Client starts the dialing side of a multiplexed session over c.
func Client(c net.Conn, kind transport.Kind, opts Options) (*Conn, error) {
	cfg, err := opts.yamuxConfig()
	if err != nil {
		return nil, err
	}
	s, err := yamux.Client(c, cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{s: s, kind: kind}, nil
}

// Server starts the accepting side of a multiplexed session over c.
func Server(c net.Conn, kind transport.Kind, opts Options) (*Conn, error) {
	cfg, err := opts.yamuxConfig()
	if err != nil {
		return nil, err
	}
	s, err := yamux.Server(c, cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{s: s, kind: kind}, nil
}

// Conn is a yamux session exposed as a transport.Conn.
type Conn struct {
	s    *yamux.Session
	kind transport.Kind
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) Kind() transport.Kind       { return c.kind }
func (c *Conn) LocalAddr() net.Addr        { return c.s.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr       { return c.s.RemoteAddr() }
func (c *Conn) NumStreams() int            { return c.s.NumStreams() }
func (c *Conn) CloseChan() <-chan struct{} { return c.s.CloseChan() }

// OpenStream opens a stream to the peer. yamux blocks the open while
// AcceptBacklog streams are still unacknowledged; ctx bounds that wait, and
// a stream that opens after ctx is done is closed.
func (c *Conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Done() == nil {
		return c.open()
	}
	type opened struct {
		st  transport.Stream
		err error
	}
	res := make(chan opened, 1)
	go func() {
		st, err := c.open()
		res <- opened{st, err}
	}()
	select {
	case r := <-res:
		return r.st, r.err
	case <-ctx.Done():
		go func() {
			if r := <-res; r.err == nil {
				_ = r.st.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (c *Conn) open() (transport.Stream, error) {
	st, err := c.s.OpenStream()
	if err != nil {
		return nil, err
	}
	return &stream{st}, nil
}

func (c *Conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	st, err := c.s.AcceptStreamWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// yamux reports a session shut down locally or closed by the peer
		// with io.EOF or ErrSessionShutdown; anything else is abnormal.
		if errors.Is(err, io.EOF) || errors.Is(err, yamux.ErrSessionShutdown) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &stream{st}, nil
}

func (c *Conn) Close() error { return c.s.Close() }

// stream adapts a yamux stream: its Close only half-closes, so a full
// Close also interrupts pending reads.
type stream struct {
	*yamux.Stream
}

func (s *stream) CloseWrite() error { return s.Stream.Close() }

func (s *stream) Close() error {
	_ = s.Stream.SetReadDeadline(aLongTimeAgo)
	return s.Stream.Close()
}
