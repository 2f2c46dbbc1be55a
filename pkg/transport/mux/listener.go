package mux

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/zsl99a/netz/pkg/transport"
)

// Listener accepts net.Conns from an underlying listener and serves each as
// a multiplexed transport.Conn.
type Listener struct {
	l      net.Listener
	kind   transport.Kind
	opts   Options
	connCh chan net.Conn

	closeOnce sync.Once
	closeCh   chan struct{}
	failCh    chan struct{}
	err       error
}

var _ transport.ConnAcceptor = (*Listener)(nil)

// NewListener starts accepting on l. Closing the Listener closes l.
func NewListener(l net.Listener, kind transport.Kind, opts Options) (*Listener, error) {
	if _, err := opts.yamuxConfig(); err != nil {
		return nil, err
	}
	ml := &Listener{
		l:       l,
		kind:    kind,
		opts:    opts,
		connCh:  make(chan net.Conn),
		closeCh: make(chan struct{}),
		failCh:  make(chan struct{}),
	}
	go ml.acceptLoop()
	return ml, nil
}

func (l *Listener) Addr() net.Addr { return l.l.Addr() }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.failCh:
			return nil, &transport.AcceptError{Kind: l.kind, Address: l.l.Addr().String(), Err: l.err}
		case c := <-l.connCh:
			mc, err := Server(c, l.kind, l.opts)
			if err != nil {
				_ = c.Close()
				continue
			}
			return mc, nil
		}
	}
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *Listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				err = transport.ErrClosed
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				err = transport.ErrClosed
			}
			l.err = err
			close(l.failCh)
			return
		}
		select {
		case l.connCh <- c:
		case <-l.closeCh:
			_ = c.Close()
		}
	}
}
