package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
)

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR format (RFC 8949) with the core profile.
func CBOR() (Format, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborFormat{enc: em, dec: dm}, nil
}

func (c cborFormat) Name() string                       { return "cbor" }
func (c cborFormat) ContentType() string                { return "application/cbor" }
func (c cborFormat) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborFormat) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

func (c cborFormat) UnmarshalFirst(data []byte, v any) (int, error) {
	rest, err := c.dec.UnmarshalFirst(data, v)
	if err != nil {
		return 0, err
	}
	return len(data) - len(rest), nil
}
