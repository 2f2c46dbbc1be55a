// Package frame turns a raw byte stream into a stream of length-delimited
// frames and back.
//
// Wire format, repeated per frame:
//
//	[length prefix: LengthFieldLength bytes, unsigned, ByteOrder][payload]
//
// There is no separator, checksum or version header; integrity is left to
// the transport.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOversizedFrame reports a frame whose length exceeds Config.MaxFrameLength.
	ErrOversizedFrame = errors.New("frame: oversized frame")
	// ErrTruncatedStream reports a stream that ended in the middle of a frame.
	ErrTruncatedStream = errors.New("frame: stream truncated mid-frame")
)

const (
	// DefaultMaxFrameLength bounds a single frame payload (8 MiB).
	DefaultMaxFrameLength = 8 * 1024 * 1024
	// DefaultLengthFieldLength is the width of the length prefix in bytes.
	DefaultLengthFieldLength = 4
)

// Config describes the length prefix and the frame size limit.
type Config struct {
	MaxFrameLength    int
	LengthFieldLength int
	ByteOrder         binary.ByteOrder
}

// DefaultConfig returns 4-byte big-endian prefixes and an 8 MiB limit.
func DefaultConfig() Config {
	return Config{
		MaxFrameLength:    DefaultMaxFrameLength,
		LengthFieldLength: DefaultLengthFieldLength,
		ByteOrder:         binary.BigEndian,
	}
}

// Validate fills zero fields with defaults and rejects impossible settings.
func (c *Config) Validate() error {
	if c.LengthFieldLength == 0 {
		c.LengthFieldLength = DefaultLengthFieldLength
	}
	if c.MaxFrameLength == 0 {
		c.MaxFrameLength = DefaultMaxFrameLength
	}
	if c.ByteOrder == nil {
		c.ByteOrder = binary.BigEndian
	}
	switch c.LengthFieldLength {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("frame: invalid length field length %d", c.LengthFieldLength)
	}
	if c.MaxFrameLength < 0 {
		return fmt.Errorf("frame: invalid max frame length %d", c.MaxFrameLength)
	}
	if c.LengthFieldLength < 8 {
		if limit := uint64(1)<<(8*c.LengthFieldLength) - 1; uint64(c.MaxFrameLength) > limit {
			return fmt.Errorf("frame: max frame length %d does not fit a %d-byte prefix", c.MaxFrameLength, c.LengthFieldLength)
		}
	}
	return nil
}

// putLength writes n into dst[:LengthFieldLength].
func (c *Config) putLength(dst []byte, n int) error {
	if n > c.MaxFrameLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrOversizedFrame, n, c.MaxFrameLength)
	}
	switch c.LengthFieldLength {
	case 1:
		dst[0] = byte(n)
	case 2:
		c.ByteOrder.PutUint16(dst, uint16(n))
	case 4:
		c.ByteOrder.PutUint32(dst, uint32(n))
	default:
		c.ByteOrder.PutUint64(dst, uint64(n))
	}
	return nil
}

// length reads the prefix at the start of src.
func (c *Config) length(src []byte) uint64 {
	switch c.LengthFieldLength {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(c.ByteOrder.Uint16(src))
	case 4:
		return uint64(c.ByteOrder.Uint32(src))
	default:
		return c.ByteOrder.Uint64(src)
	}
}

// Append appends payload to dst as one frame.
func (c Config) Append(dst, payload []byte) ([]byte, error) {
	var hdr [8]byte
	if err := c.putLength(hdr[:], len(payload)); err != nil {
		return dst, err
	}
	dst = append(dst, hdr[:c.LengthFieldLength]...)
	return append(dst, payload...), nil
}
