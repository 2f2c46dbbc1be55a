package frame

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

var aLongTimeAgo = time.Unix(1, 0)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type flusher interface {
	Flush() error
}

// Conn exposes an ordered byte stream as a stream and sink of frames.
// One goroutine may read and another may write concurrently; neither side
// is safe for concurrent use by multiple goroutines.
type Conn struct {
	cfg  Config
	rw   io.ReadWriter
	dec  *Decoder
	rerr error // terminal error of the underlying reader
	hdr  [8]byte
}

// NewConn wraps rw. Zero fields of cfg take their defaults.
func NewConn(rw io.ReadWriter, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Conn{cfg: cfg, rw: rw, dec: NewDecoder(cfg)}, nil
}

// Config returns the validated framing configuration.
func (c *Conn) Config() Config { return c.cfg }

// HeaderLen is the number of prefix bytes in front of each payload.
func (c *Conn) HeaderLen() int { return c.cfg.LengthFieldLength }

// Buffered reports received bytes that do not form a complete frame yet.
func (c *Conn) Buffered() int { return c.dec.Buffered() }

// ReadFrame blocks until a full frame is available and returns its payload.
// The payload aliases an internal buffer and is valid until the next call.
//
// It returns io.EOF when the stream ends on a frame boundary and
// ErrTruncatedStream when it ends inside a frame. Canceling ctx interrupts
// a blocked read if the stream supports read deadlines; bytes received so
// far stay buffered and a later call resumes from them.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	empty := 0
	for {
		p, ok, err := c.dec.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
		if c.rerr != nil {
			if errors.Is(c.rerr, io.EOF) && c.dec.Buffered() > 0 {
				return nil, c.dec.fail(fmt.Errorf("%w: %d bytes buffered", ErrTruncatedStream, c.dec.Buffered()))
			}
			return nil, c.rerr
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := c.fill(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			c.rerr = err
		case n == 0:
			if empty++; empty >= maxEmptyReads {
				return nil, io.ErrNoProgress
			}
		default:
			empty = 0
		}
	}
}

// fill performs one read, arming a read deadline from ctx when possible.
func (c *Conn) fill(ctx context.Context) (int64, error) {
	dl, ok := c.rw.(readDeadliner)
	if !ok || ctx.Done() == nil {
		return c.dec.ReadFrom(c.rw)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = dl.SetReadDeadline(aLongTimeAgo)
		close(fired)
	})
	n, err := c.dec.ReadFrom(c.rw)
	if !stop() {
		<-fired
		_ = dl.SetReadDeadline(time.Time{})
	}
	return n, err
}

// WriteFrame writes payload as one frame and flushes the writer when it
// buffers. The payload is not copied.
func (c *Conn) WriteFrame(payload []byte) error {
	hl := c.cfg.LengthFieldLength
	if err := c.cfg.putLength(c.hdr[:], len(payload)); err != nil {
		return err
	}
	bufs := net.Buffers{c.hdr[:hl], payload}
	if _, err := bufs.WriteTo(c.rw); err != nil {
		return err
	}
	return c.flush()
}

// WriteReserved writes a frame whose first HeaderLen bytes were left free
// for the prefix, so the frame goes out in a single write.
func (c *Conn) WriteReserved(frame []byte) error {
	hl := c.cfg.LengthFieldLength
	if len(frame) < hl {
		return fmt.Errorf("frame: reserved frame shorter than %d-byte prefix", hl)
	}
	if err := c.cfg.putLength(frame[:hl], len(frame)-hl); err != nil {
		return err
	}
	if _, err := c.rw.Write(frame); err != nil {
		return err
	}
	return c.flush()
}

func (c *Conn) flush() error {
	if f, ok := c.rw.(flusher); ok {
		return f.Flush()
	}
	return nil
}
