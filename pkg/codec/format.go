package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Format marshals whole values to and from one serialization format.
// Implementations should be deterministic and safe for cross-node exchange.
type Format interface {
	// Name is the short identifier used in configuration (e.g. "msgpack").
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// FirstUnmarshaler is implemented by self-delimiting formats. UnmarshalFirst
// decodes the first value in data into v and returns the number of bytes it
// occupied. It returns io.EOF or io.ErrUnexpectedEOF when data holds only a
// prefix of a value.
type FirstUnmarshaler interface {
	UnmarshalFirst(data []byte, v any) (int, error)
}

// MarshalAppender is implemented by formats that can encode straight into a
// caller-owned buffer.
type MarshalAppender interface {
	AppendMarshal(dst []byte, v any) ([]byte, error)
}

// Registry maps format names and content types to formats.
type Registry struct {
	byType map[string]Format
	byName map[string]Format
}

// NewRegistry constructs a registry preloaded with the built-in formats:
// MessagePack, CBOR, JSON and Protobuf.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Format), byName: make(map[string]Format)}
	r.Register(MsgPack())
	r.Register(JSON())
	r.Register(Proto())
	// canonical options are static; CBOR() only fails on invalid options
	if c, err := CBOR(); err == nil {
		r.Register(c)
	}
	return r
}

// Register adds a format, replacing any format with the same name or content type.
func (r *Registry) Register(f Format) {
	r.byType[f.ContentType()] = f
	r.byName[strings.ToLower(f.Name())] = f
}

// Get returns a format by content type, or nil.
func (r *Registry) Get(contentType string) Format { return r.byType[contentType] }

// Lookup returns a format by name or content type.
func (r *Registry) Lookup(name string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if f, ok := r.byName[key]; ok {
		return f, nil
	}
	if f, ok := r.byType[key]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("codec: unknown format %q", name)
}

// Names lists registered format names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
