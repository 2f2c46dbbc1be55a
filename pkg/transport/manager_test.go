package transport

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	remote string
	closed int
	err    error
}

func (c *fakeConn) OpenStream(context.Context) (Stream, error)   { return nil, ErrClosed }
func (c *fakeConn) AcceptStream(context.Context) (Stream, error) { return nil, ErrClosed }
func (c *fakeConn) Kind() Kind                                   { return KindMem }
func (c *fakeConn) LocalAddr() net.Addr                          { return nil }
func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(c.remote), Port: 1}
}
func (c *fakeConn) Close() error { c.closed++; return c.err }

func TestManagerAddReplaces(t *testing.T) {
	m := NewManager()
	first := &fakeConn{remote: "10.0.0.1"}
	second := &fakeConn{remote: "10.0.0.2"}

	require.Nil(t, m.Add("p1", first))
	require.Same(t, first, m.Add("p1", second))
	require.Equal(t, 1, m.Len())
	require.Same(t, second, m.Get("p1"))

	// a stale connection does not remove its replacement
	require.False(t, m.Remove("p1", first))
	require.True(t, m.Remove("p1", second))
	require.Nil(t, m.Get("p1"))
}

func TestManagerList(t *testing.T) {
	m := NewManager()
	m.Add("b", &fakeConn{remote: "10.0.0.2"})
	m.Add("a", &fakeConn{remote: "10.0.0.1"})

	peers := m.List()
	require.Len(t, peers, 2)
	require.Equal(t, "a", peers[0].ID)
	require.Equal(t, "10.0.0.1:1", peers[0].RemoteAddr)
	require.Equal(t, KindMem, peers[1].Kind)
	require.False(t, peers[1].EstablishedAt.IsZero())
}

func TestManagerClose(t *testing.T) {
	m := NewManager()
	ok := &fakeConn{remote: "10.0.0.1"}
	bad := &fakeConn{remote: "10.0.0.2", err: errors.New("boom")}
	m.Add("ok", ok)
	m.Add("bad", bad)

	require.NoError(t, m.ClosePeer("missing"))
	require.NoError(t, m.ClosePeer("ok"))
	require.Equal(t, 1, ok.closed)

	m.Add("ok", ok)
	err := m.CloseAll()
	require.EqualError(t, err, "boom")
	require.Equal(t, 2, ok.closed)
	require.Equal(t, 1, bad.closed)
	require.Zero(t, m.Len())
}

func TestParseKind(t *testing.T) {
	for s, want := range map[string]Kind{
		"quic": KindQUIC, " TCP ": KindTCP, "mem": KindMem, "inproc": KindMem,
		"winpipe": KindWinPipe, "udp": KindUnknown,
	} {
		require.Equal(t, want, ParseKind(s), s)
		if want != KindUnknown {
			require.Equal(t, want, ParseKind(want.String()))
		}
	}
}
