// Package transporttest holds behavior checks shared by the transport
// providers' tests.
package transporttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zsl99a/netz/pkg/channel"
	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/transport"
)

type message struct {
	Stream string `msgpack:"stream"`
	Seq    int    `msgpack:"seq"`
}

var msgCodec = codec.MessagePack[message, message]()

// Multiplexing listens on address, opens one connection with two streams
// and checks that each stream delivers its own messages in order.
func Multiplexing(t *testing.T, tr transport.Transport, address string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l, err := tr.Listen(ctx, address)
	require.NoError(t, err)
	defer l.Close()

	type result struct {
		got map[string][]int
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := collect(ctx, l, 2)
		done <- result{got, err}
	}()

	c, err := tr.Open(ctx, l.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, tr.Kind(), c.Kind())

	a, err := channel.Open(ctx, c, msgCodec, channel.Options{})
	require.NoError(t, err)
	defer a.Close()
	b, err := channel.Open(ctx, c, msgCodec, channel.Options{})
	require.NoError(t, err)
	defer b.Close()

	const n, m = 40, 25
	// each stream gets its own sender so their frames interleave on the wire
	send := func(ch *channel.Channel[message, message], name string, count int) func() error {
		return func() error {
			for i := range count {
				if err := ch.Send(ctx, message{Stream: name, Seq: i}); err != nil {
					return err
				}
			}
			return ch.Shutdown(ctx)
		}
	}
	var g errgroup.Group
	g.Go(send(a, "a", n))
	g.Go(send(b, "b", m))
	require.NoError(t, g.Wait())

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, seq(n), res.got["a"])
	require.Equal(t, seq(m), res.got["b"])
}

// ConnEnd checks that a clean close by the dialing side ends the
// acceptor's AcceptStream with io.EOF.
func ConnEnd(t *testing.T, tr transport.Transport, address string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l, err := tr.Listen(ctx, address)
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			accepted <- err
			return
		}
		defer c.Close()
		_, err = c.AcceptStream(ctx)
		accepted <- err
	}()

	c, err := tr.Open(ctx, l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	err = <-accepted
	require.True(t, transport.IsConnEnded(err), "got %v", err)
}

func collect(ctx context.Context, l transport.ConnAcceptor, streams int) (map[string][]int, error) {
	c, err := l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var mu sync.Mutex
	got := make(map[string][]int)
	g, gctx := errgroup.WithContext(ctx)
	for range streams {
		ch, err := channel.Accept(ctx, c, msgCodec, channel.Options{})
		if err != nil {
			_ = c.Close()
			_ = g.Wait()
			return nil, err
		}
		g.Go(func() error {
			defer ch.Close()
			for msg, err := range ch.Messages(gctx) {
				if err != nil {
					return err
				}
				mu.Lock()
				got[msg.Stream] = append(got[msg.Stream], msg.Seq)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return got, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
