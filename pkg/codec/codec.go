// Package codec converts typed messages to and from frame payloads.
//
// A Format knows one serialization (MessagePack, CBOR, JSON, Protobuf); a
// Codec binds a Format to the concrete inbound and outbound message types
// of one channel. The codec never assumes message boundaries: framing is
// the job of package frame.
package codec

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDecode reports bytes that are present but malformed for the target type.
	ErrDecode = errors.New("codec: decode")
	// ErrEncode reports a value the format cannot serialize.
	ErrEncode = errors.New("codec: encode")
)

// Decoder decodes one item from the front of src and returns the number of
// bytes it consumed. n == 0 with a nil error means src does not yet hold a
// full item; src is left untouched in that case.
type Decoder[T any] interface {
	Decode(src []byte) (item T, n int, err error)
}

// Encoder appends the encoding of item to dst.
type Encoder[T any] interface {
	Encode(dst []byte, item T) ([]byte, error)
}

// Codec decodes In values and encodes Out values using a Format.
type Codec[In, Out any] struct {
	format Format
}

// New returns a Codec over f.
func New[In, Out any](f Format) Codec[In, Out] { return Codec[In, Out]{format: f} }

// MessagePack returns a MessagePack Codec.
func MessagePack[In, Out any]() Codec[In, Out] { return New[In, Out](MsgPack()) }

// Format returns the underlying format.
func (c Codec[In, Out]) Format() Format { return c.format }

func (c Codec[In, Out]) Decode(src []byte) (In, int, error) {
	var item In
	if len(src) == 0 {
		return item, 0, nil
	}
	fu, ok := c.format.(FirstUnmarshaler)
	if !ok {
		if err := c.format.Unmarshal(src, &item); err != nil {
			var zero In
			return zero, 0, fmt.Errorf("%w: %s: %w", ErrDecode, c.format.Name(), err)
		}
		return item, len(src), nil
	}
	n, err := fu.UnmarshalFirst(src, &item)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		var zero In
		return zero, 0, nil
	case err != nil:
		var zero In
		return zero, 0, fmt.Errorf("%w: %s: %w", ErrDecode, c.format.Name(), err)
	}
	return item, n, nil
}

func (c Codec[In, Out]) Encode(dst []byte, item Out) ([]byte, error) {
	if fa, ok := c.format.(MarshalAppender); ok {
		out, err := fa.AppendMarshal(dst, item)
		if err != nil {
			return dst, fmt.Errorf("%w: %s: %w", ErrEncode, c.format.Name(), err)
		}
		return out, nil
	}
	b, err := c.format.Marshal(item)
	if err != nil {
		return dst, fmt.Errorf("%w: %s: %w", ErrEncode, c.format.Name(), err)
	}
	return append(dst, b...), nil
}
