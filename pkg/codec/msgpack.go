package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

type msgpackFormat struct{}

// MsgPack returns a MessagePack format. Integers are written in their most
// compact representation. Content-Type: application/msgpack
func MsgPack() Format { return msgpackFormat{} }

func (msgpackFormat) Name() string        { return "msgpack" }
func (msgpackFormat) ContentType() string { return "application/msgpack" }

func (f msgpackFormat) Marshal(v any) ([]byte, error) { return f.AppendMarshal(nil, v) }

func (msgpackFormat) AppendMarshal(dst []byte, v any) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

func (msgpackFormat) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (msgpackFormat) UnmarshalFirst(data []byte, v any) (int, error) {
	// bytes.Reader is an io.ByteScanner, so the decoder reads from it
	// directly and Len reports exactly what one value consumed.
	r := bytes.NewReader(data)
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(r)
	if err := dec.Decode(v); err != nil {
		return 0, err
	}
	return len(data) - r.Len(), nil
}
