// Package tcp provides multi-stream connections over TCP. Each TCP
// connection carries a yamux session, so one connection hosts many
// independent streams.
package tcp

import (
	"context"
	"net"
	"time"

	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mux"
)

// Options configures the TCP transport.
type Options struct {
	// DialTimeout bounds connection establishment when ctx has no deadline.
	DialTimeout time.Duration
	KeepAlive   time.Duration
	Mux         mux.Options
}

// Transport dials and listens for multiplexed TCP connections.
type Transport struct {
	opts Options
}

var _ transport.Transport = (*Transport)(nil)

func New(opts Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.ConnAcceptor, error) {
	lc := net.ListenConfig{KeepAlive: t.opts.KeepAlive}
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	ml, err := mux.NewListener(l, transport.KindTCP, t.opts.Mux)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	return ml, nil
}

func (t *Transport) Open(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{Timeout: t.opts.DialTimeout, KeepAlive: t.opts.KeepAlive}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &transport.ConnectError{Kind: transport.KindTCP, Address: address, Err: err}
	}
	mc, err := mux.Client(c, transport.KindTCP, t.opts.Mux)
	if err != nil {
		_ = c.Close()
		return nil, &transport.ConnectError{Kind: transport.KindTCP, Address: address, Err: err}
	}
	return mc, nil
}
