package codec

import (
	"bytes"
	"encoding/json"
)

type jsonFormat struct{}

// JSON returns a JSON format (RFC 8259). Content-Type: application/json
func JSON() Format { return jsonFormat{} }

func (jsonFormat) Name() string                       { return "json" }
func (jsonFormat) ContentType() string                { return "application/json" }
func (jsonFormat) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonFormat) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonFormat) UnmarshalFirst(data []byte, v any) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return 0, err
	}
	return int(dec.InputOffset()), nil
}
