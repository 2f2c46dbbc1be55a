// Package channel presents a byte stream as a bidirectional channel of
// typed messages: frames come from package frame, payloads are converted
// by a codec.
//
// A Channel has a read half and a write half. They may be driven by
// different goroutines, but each half expects a single caller at a time.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/frame"
	"github.com/zsl99a/netz/pkg/observability"
	"github.com/zsl99a/netz/pkg/task"
	"github.com/zsl99a/netz/pkg/transport"
)

var (
	// ErrNotReady is returned by TrySend while the previous frame is still
	// being written. The message was not consumed; retry after Ready.
	ErrNotReady = errors.New("channel: write half not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("channel: closed")
	// ErrWriteShutdown is returned by writes after Shutdown.
	ErrWriteShutdown = errors.New("channel: write half shut down")
)

// Options configures a Channel. The zero value uses the default framing,
// zap.L() and no metrics.
type Options struct {
	Frame   frame.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type closeWriter interface {
	CloseWrite() error
}

// Channel reads In messages from and writes Out messages to one stream.
type Channel[In, Out any] struct {
	rwc     io.ReadWriteCloser
	conn    *frame.Conn
	dec     codec.Decoder[In]
	enc     codec.Encoder[Out]
	log     *zap.Logger
	metrics *observability.Metrics

	rerr error // sticky read-half error

	w      *writeHalf
	wbuf   []byte
	writer *task.Handle

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// New wraps rwc. The channel owns rwc from now on.
func New[In, Out any](rwc io.ReadWriteCloser, dec codec.Decoder[In], enc codec.Encoder[Out], opts Options) (*Channel[In, Out], error) {
	conn, err := frame.NewConn(rwc, opts.Frame)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	c := &Channel[In, Out]{
		rwc:     rwc,
		conn:    conn,
		dec:     dec,
		enc:     enc,
		log:     log,
		metrics: opts.Metrics,
		w: &writeHalf{
			conn:    conn,
			idle:    make(chan struct{}, 1),
			frames:  make(chan []byte),
			log:     log,
			metrics: opts.Metrics,
		},
		closed: make(chan struct{}),
	}
	c.w.idle <- struct{}{}
	// the writer only sees c.w, so an abandoned Channel stays collectable
	c.writer = task.Run(c.w.loop)
	runtime.SetFinalizer(c, func(c *Channel[In, Out]) { _ = c.Close() })
	return c, nil
}

// NewMsgPack wraps rwc with the MessagePack codec.
func NewMsgPack[In, Out any](rwc io.ReadWriteCloser, opts Options) (*Channel[In, Out], error) {
	c := codec.MessagePack[In, Out]()
	return New[In, Out](rwc, c, c, opts)
}

// Open opens a new stream with so and builds a Channel on it.
func Open[In, Out any](ctx context.Context, so transport.StreamOpener, c codec.Codec[In, Out], opts Options) (*Channel[In, Out], error) {
	s, err := so.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := New[In, Out](s, c, c, opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return ch, nil
}

// Accept waits for the peer's next stream and builds a Channel on it.
func Accept[In, Out any](ctx context.Context, sa transport.StreamAcceptor, c codec.Codec[In, Out], opts Options) (*Channel[In, Out], error) {
	s, err := sa.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := New[In, Out](s, c, c, opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return ch, nil
}

// ---- Read half ----

// Recv blocks until the next message arrives. It returns io.EOF when the
// peer ended the stream on a frame boundary. Decode, oversize and
// truncation errors end the read half: every later Recv returns the same
// error. A canceled ctx only interrupts this call.
func (c *Channel[In, Out]) Recv(ctx context.Context) (In, error) {
	var zero In
	if c.rerr != nil {
		return zero, c.rerr
	}
	for {
		p, err := c.conn.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return zero, err
			}
			if c.isClosed() {
				err = ErrClosed
			}
			return zero, c.failRead(err)
		}
		c.metrics.FrameRead(len(p))
		if len(p) == 0 {
			// an empty frame carries no item; the stream is not over
			continue
		}

		item, n, err := c.dec.Decode(p)
		switch {
		case err != nil:
			return zero, c.failRead(err)
		case n == 0:
			return zero, c.failRead(fmt.Errorf("%w: incomplete item in %d-byte frame", codec.ErrDecode, len(p)))
		case n != len(p):
			return zero, c.failRead(fmt.Errorf("%w: %d trailing bytes after item", codec.ErrDecode, len(p)-n))
		}
		return item, nil
	}
}

// Messages iterates over received messages until the stream ends. A clean
// end of stream stops the iteration silently; any other error is yielded
// once as the last element.
func (c *Channel[In, Out]) Messages(ctx context.Context) iter.Seq2[In, error] {
	return func(yield func(In, error) bool) {
		for {
			item, err := c.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(item, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (c *Channel[In, Out]) failRead(err error) error {
	c.rerr = err
	if !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed) {
		c.metrics.ChannelError(errorKind(err))
		c.log.Debug("channel read half failed", zap.Error(err))
	}
	return err
}

// ---- Write half ----

// TrySend encodes msg and hands the frame to the transport without
// blocking. While the previous frame is still in flight it returns
// ErrNotReady and msg is neither encoded nor queued. An encode error fails
// only this write.
func (c *Channel[In, Out]) TrySend(msg Out) error {
	select {
	case <-c.w.idle:
	default:
		if c.isClosed() {
			return ErrClosed
		}
		if err := c.w.Err(); err != nil {
			return err
		}
		return ErrNotReady
	}
	return c.submit(msg)
}

// Send waits until the write half is ready and submits msg.
func (c *Channel[In, Out]) Send(ctx context.Context, msg Out) error {
	select {
	case <-c.w.idle:
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.submit(msg)
}

// Ready blocks until TrySend would accept a message, or returns the error
// that ended the write half.
func (c *Channel[In, Out]) Ready(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	select {
	case <-c.w.idle:
		c.w.idle <- struct{}{}
		if c.isClosed() {
			return ErrClosed
		}
		return c.w.Err()
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until the last submitted frame was accepted by the transport.
func (c *Channel[In, Out]) Flush(ctx context.Context) error { return c.Ready(ctx) }

// submit runs with the idle token held.
func (c *Channel[In, Out]) submit(msg Out) error {
	if c.isClosed() {
		c.w.idle <- struct{}{}
		return ErrClosed
	}
	if err := c.w.Err(); err != nil {
		c.w.idle <- struct{}{}
		return err
	}
	hl := c.conn.HeaderLen()
	// encode behind a reserved prefix so the frame goes out in one write
	buf := c.wbuf[:0]
	for range hl {
		buf = append(buf, 0)
	}
	buf, err := c.enc.Encode(buf, msg)
	if err != nil {
		c.w.idle <- struct{}{}
		c.metrics.ChannelError(errorKind(err))
		return err
	}
	c.wbuf = buf
	if limit := c.conn.Config().MaxFrameLength; len(buf)-hl > limit {
		c.w.idle <- struct{}{}
		c.metrics.ChannelError("oversized")
		return fmt.Errorf("%w: %d bytes (max %d)", frame.ErrOversizedFrame, len(buf)-hl, limit)
	}
	select {
	case c.w.frames <- buf:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// writeHalf is the state shared with the writer goroutine. It must not
// point back at the Channel.
type writeHalf struct {
	conn    *frame.Conn
	log     *zap.Logger
	metrics *observability.Metrics

	// idle holds a token while no frame is in flight. Whoever takes it owns
	// the Channel's encode buffer until the writer hands it back.
	idle   chan struct{}
	frames chan []byte

	mu  sync.Mutex
	err error
}

func (w *writeHalf) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-w.frames:
			if err := w.conn.WriteReserved(buf); err != nil {
				w.fail(err)
			} else {
				w.metrics.FrameWritten(len(buf) - w.conn.HeaderLen())
			}
			w.idle <- struct{}{}
		}
	}
}

// Err returns the error that ended the write half, if any.
func (w *writeHalf) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *writeHalf) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = err
	if !errors.Is(err, ErrWriteShutdown) {
		w.metrics.ChannelError("transport")
		w.log.Debug("channel write half failed", zap.Error(err))
	}
}

// ---- Lifecycle ----

// Shutdown flushes the write half and then closes the write side of the
// stream, so the peer reads a clean end of stream. Reads keep working.
// Shutting down an already shut down write half is a no-op.
func (c *Channel[In, Out]) Shutdown(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		if errors.Is(err, ErrWriteShutdown) {
			return nil
		}
		return err
	}
	// keep the token so no further frame can be submitted
	<-c.w.idle
	defer func() { c.w.idle <- struct{}{} }()
	c.w.fail(ErrWriteShutdown)
	if cw, ok := c.rwc.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Close stops the writer and closes the underlying stream. Buffered partial
// frames are discarded. Close is idempotent. A Channel that becomes
// unreachable without Close is closed by a finalizer.
func (c *Channel[In, Out]) Close() error {
	c.closeOnce.Do(func() {
		runtime.SetFinalizer(c, nil)
		close(c.closed)
		c.writer.Release()
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

func (c *Channel[In, Out]) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, codec.ErrDecode):
		return "decode"
	case errors.Is(err, codec.ErrEncode):
		return "encode"
	case errors.Is(err, frame.ErrOversizedFrame):
		return "oversized"
	case errors.Is(err, frame.ErrTruncatedStream):
		return "truncated"
	default:
		return "transport"
	}
}
