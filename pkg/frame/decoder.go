package frame

import (
	"fmt"
	"io"
)

const minRead = 512

// Decoder reassembles frames from bytes written into it. It never exposes a
// partial frame. After an error the Decoder yields nothing more.
type Decoder struct {
	cfg Config
	buf []byte
	off int // start of unconsumed bytes
	err error
}

// NewDecoder returns a Decoder for cfg. cfg must have been validated.
func NewDecoder(cfg Config) *Decoder { return &Decoder{cfg: cfg} }

// Write appends p to the reassembly buffer.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.compact()
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// ReadFrom performs a single Read from r into the reassembly buffer.
func (d *Decoder) ReadFrom(r io.Reader) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.compact()
	if cap(d.buf)-len(d.buf) < minRead {
		nb := make([]byte, len(d.buf), 2*cap(d.buf)+minRead)
		copy(nb, d.buf)
		d.buf = nb
	}
	n, err := r.Read(d.buf[len(d.buf):cap(d.buf)])
	if n < 0 {
		n = 0
	}
	d.buf = d.buf[:len(d.buf)+n]
	return int64(n), err
}

// Next returns the next complete frame. ok is false when the buffer does not
// hold a full frame yet; nothing is consumed in that case. The returned
// slice aliases the buffer and is valid until the next Write or ReadFrom.
func (d *Decoder) Next() (payload []byte, ok bool, err error) {
	if d.err != nil {
		return nil, false, d.err
	}
	pending := d.buf[d.off:]
	hl := d.cfg.LengthFieldLength
	if len(pending) < hl {
		return nil, false, nil
	}
	n := d.cfg.length(pending)
	if n > uint64(d.cfg.MaxFrameLength) {
		d.err = fmt.Errorf("%w: %d bytes (max %d)", ErrOversizedFrame, n, d.cfg.MaxFrameLength)
		return nil, false, d.err
	}
	total := hl + int(n)
	if len(pending) < total {
		return nil, false, nil
	}
	d.off += total
	if d.off == len(d.buf) {
		// fully drained; rewind without moving bytes
		d.buf, d.off = d.buf[:0], 0
	}
	return pending[hl:total:total], true, nil
}

// Buffered returns the number of buffered bytes not yet returned as frames.
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Err returns the sticky error, if any.
func (d *Decoder) Err() error { return d.err }

// fail records err as the sticky error.
func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// compact moves unconsumed bytes to the front of the buffer.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf, d.off = d.buf[:n], 0
}
