package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/transporttest"
)

func TestMultiplexing(t *testing.T) {
	transporttest.Multiplexing(t, New(Options{}), "127.0.0.1:0")
}

func TestConnEnd(t *testing.T) {
	transporttest.ConnEnd(t, New(Options{}), "127.0.0.1:0")
}

func TestOpenRefused(t *testing.T) {
	tr := New(Options{DialTimeout: time.Second})
	l, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = tr.Open(context.Background(), addr)
	var ce *transport.ConnectError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, transport.KindTCP, ce.Kind)
	require.Equal(t, addr, ce.Address)
}
