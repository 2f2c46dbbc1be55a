//go:build windows

// Package winpipe provides multi-stream connections over Windows named
// pipes, multiplexed with yamux.
package winpipe

import (
	"context"

	"github.com/Microsoft/go-winio"

	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mux"
)

// Transport dials and listens on named pipes such as \\.\pipe\netz.
type Transport struct {
	opts mux.Options
}

var _ transport.Transport = (*Transport)(nil)

func New(opts mux.Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(_ context.Context, pipeName string) (transport.ConnAcceptor, error) {
	l, err := winio.ListenPipe(pipeName, nil)
	if err != nil {
		return nil, err
	}
	ml, err := mux.NewListener(l, transport.KindWinPipe, t.opts)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	return ml, nil
}

func (t *Transport) Open(ctx context.Context, pipeName string) (transport.Conn, error) {
	c, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil {
		return nil, &transport.ConnectError{Kind: transport.KindWinPipe, Address: pipeName, Err: err}
	}
	mc, err := mux.Client(c, transport.KindWinPipe, t.opts)
	if err != nil {
		_ = c.Close()
		return nil, &transport.ConnectError{Kind: transport.KindWinPipe, Address: pipeName, Err: err}
	}
	return mc, nil
}
