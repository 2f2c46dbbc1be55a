package mux

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zsl99a/netz/pkg/transport"
)

func TestOpenStreamHonorsContextWhileBacklogFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := net.Pipe()
	client, err := Client(a, transport.KindMem, Options{AcceptBacklog: 1, DisableKeepAlive: true})
	require.NoError(t, err)
	defer client.Close()
	server, err := Server(b, transport.KindMem, Options{DisableKeepAlive: true})
	require.NoError(t, err)
	defer server.Close()

	// the server never accepts, so the first stream stays unacknowledged
	first, err := client.OpenStream(context.Background())
	require.NoError(t, err)
	defer first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = client.OpenStream(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.OpenStream(canceled)
	require.ErrorIs(t, err, context.Canceled)
}
