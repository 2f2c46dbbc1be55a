// Package mem is an in-process transport built on net.Pipe. Listeners are
// registered by name on a Network. It is used by tests and as a loopback
// transport.
package mem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mux"
)

// ErrNoListener reports a dial to a name nobody listens on.
var ErrNoListener = errors.New("mem: no such listener")

// Network is a namespace of in-memory listeners.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*pipeListener
	opts      mux.Options
}

var _ transport.Transport = (*Network)(nil)

func New(opts mux.Options) *Network {
	return &Network{listeners: make(map[string]*pipeListener), opts: opts}
}

func (n *Network) Kind() transport.Kind { return transport.KindMem }

func (n *Network) Listen(_ context.Context, name string) (transport.ConnAcceptor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[name]; ok {
		return nil, fmt.Errorf("mem: listener %q already exists", name)
	}
	pl := &pipeListener{name: name, conns: make(chan net.Conn), closeCh: make(chan struct{}), net: n}
	ml, err := mux.NewListener(pl, transport.KindMem, n.opts)
	if err != nil {
		return nil, err
	}
	n.listeners[name] = pl
	return ml, nil
}

func (n *Network) Open(ctx context.Context, name string) (transport.Conn, error) {
	n.mu.Lock()
	pl := n.listeners[name]
	n.mu.Unlock()
	if pl == nil {
		return nil, &transport.ConnectError{Kind: transport.KindMem, Address: name, Err: ErrNoListener}
	}
	local, remote := net.Pipe()
	select {
	case pl.conns <- remote:
	case <-pl.closeCh:
		_, _ = local.Close(), remote.Close()
		return nil, &transport.ConnectError{Kind: transport.KindMem, Address: name, Err: transport.ErrClosed}
	case <-ctx.Done():
		_, _ = local.Close(), remote.Close()
		return nil, &transport.ConnectError{Kind: transport.KindMem, Address: name, Err: ctx.Err()}
	}
	mc, err := mux.Client(local, transport.KindMem, n.opts)
	if err != nil {
		_ = local.Close()
		return nil, &transport.ConnectError{Kind: transport.KindMem, Address: name, Err: err}
	}
	return mc, nil
}

// pipeListener is a net.Listener fed by Network.Open.
type pipeListener struct {
	name    string
	conns   chan net.Conn
	once    sync.Once
	closeCh chan struct{}
	net     *Network
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)
		l.net.mu.Lock()
		if l.net.listeners[l.name] == l {
			delete(l.net.listeners, l.name)
		}
		l.net.mu.Unlock()
	})
	return nil
}

func (l *pipeListener) Addr() net.Addr { return addr(l.name) }

type addr string

func (a addr) Network() string { return "mem" }
func (a addr) String() string  { return string(a) }
