package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

type protoFormat struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers format with deterministic marshaling.
// Protobuf is not self-delimiting: a decode consumes the whole frame.
// Content-Type: application/x-protobuf
func Proto() Format {
	return protoFormat{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (p protoFormat) Name() string        { return "proto" }
func (p protoFormat) ContentType() string { return "application/x-protobuf" }

func (p protoFormat) Marshal(v any) ([]byte, error) { return p.AppendMarshal(nil, v) }

func (p protoFormat) AppendMarshal(dst []byte, v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return dst, fmt.Errorf("protobuf: value does not implement proto.Message: %T", v)
	}
	return p.mo.MarshalAppend(dst, msg)
}

// Unmarshal accepts a proto.Message or a pointer to a nil message pointer,
// which is allocated first. The latter is what a Codec whose item type is a
// message pointer hands in.
func (p protoFormat) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return p.uo.Unmarshal(data, msg)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Pointer {
		inner := reflect.New(rv.Elem().Type().Elem())
		if msg, ok := inner.Interface().(proto.Message); ok {
			if err := p.uo.Unmarshal(data, msg); err != nil {
				return err
			}
			rv.Elem().Set(inner)
			return nil
		}
	}
	return fmt.Errorf("protobuf: target does not implement proto.Message: %T", v)
}
