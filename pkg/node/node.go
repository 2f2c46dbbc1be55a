// Package node wires transports, framed channels and the peer table into a
// small demo service: the server greets every connection on a stream it
// opens and echoes every stream the peer opens; the client dials, reads the
// greeting and exchanges messages.
package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/channel"
	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/observability"
)

// Message kinds.
const (
	KindHello = "hello"
	KindData  = "data"
	KindEcho  = "echo"
)

// Message is the payload exchanged by servers and clients.
type Message struct {
	Seq  uint64 `msgpack:"seq" cbor:"seq" json:"seq"`
	Kind string `msgpack:"kind" cbor:"kind" json:"kind"`
	From string `msgpack:"from,omitempty" cbor:"from,omitempty" json:"from,omitempty"`
	Body string `msgpack:"body,omitempty" cbor:"body,omitempty" json:"body,omitempty"`
}

// Options is shared by Server and Client.
type Options struct {
	// Name identifies this node in greetings and echoes.
	Name string
	// Format encodes Messages; MessagePack when nil. Message is a plain
	// struct, so the protobuf format cannot carry it.
	Format  codec.Format
	Channel channel.Options
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

func (o Options) withDefaults() (Options, codec.Codec[Message, Message], error) {
	if o.Format == nil {
		o.Format = codec.MsgPack()
	}
	if o.Format.Name() == "proto" {
		return o, codec.Codec[Message, Message]{}, fmt.Errorf("node: format %q cannot encode node messages", o.Format.Name())
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	if o.Channel.Logger == nil {
		o.Channel.Logger = o.Logger
	}
	if o.Channel.Metrics == nil {
		o.Channel.Metrics = o.Metrics
	}
	return o, codec.New[Message, Message](o.Format), nil
}
