package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/frame"
	"github.com/zsl99a/netz/pkg/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type point struct {
	Seq  int    `msgpack:"seq"`
	Note string `msgpack:"note"`
}

// rwc joins a reader and a writer into a stream with a no-op Close.
type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error { return nil }

func wire(t *testing.T, items ...any) []byte {
	t.Helper()
	c := codec.MessagePack[any, any]()
	cfg := frame.DefaultConfig()
	var out []byte
	for _, it := range items {
		p, err := c.Encode(nil, it)
		require.NoError(t, err)
		out, err = cfg.Append(out, p)
		require.NoError(t, err)
	}
	return out
}

func pipePair(t *testing.T) (*Channel[point, point], *Channel[point, point]) {
	t.Helper()
	a, b := net.Pipe()
	ca, err := NewMsgPack[point, point](a, Options{})
	require.NoError(t, err)
	cb, err := NewMsgPack[point, point](b, Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})
	return ca, cb
}

func TestRoundTripOverPipe(t *testing.T) {
	ctx := context.Background()
	ca, cb := pipePair(t)

	go func() {
		for i := 1; i <= 3; i++ {
			if err := ca.Send(ctx, point{Seq: i, Note: "n"}); err != nil {
				return
			}
		}
	}()

	for i := 1; i <= 3; i++ {
		p, err := cb.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, point{Seq: i, Note: "n"}, p)
	}
}

func TestSendWireBytes(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	ch, err := NewMsgPack[map[string]int, map[string]int](a, Options{})
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.TrySend(map[string]int{"seq": 1}))

	got := make([]byte, 10)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x06, 0x81, 0xa3, 0x73, 0x65, 0x71, 0x01}, got)
	require.NoError(t, ch.Flush(context.Background()))

	// a fresh decoder reads the same bytes back with nothing left over
	dec := frame.NewDecoder(frame.DefaultConfig())
	_, err = dec.Write(got)
	require.NoError(t, err)
	payload, ok, err := dec.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dec.Buffered())

	msg, n, err := codec.MessagePack[map[string]int, map[string]int]().Decode(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, map[string]int{"seq": 1}, msg)
}

func TestTrySendBackpressure(t *testing.T) {
	ctx := context.Background()
	a, b := net.Pipe()
	defer b.Close()
	ch, err := NewMsgPack[point, point](a, Options{})
	require.NoError(t, err)
	defer ch.Close()

	// nobody reads b yet, so the first frame stays in flight
	require.NoError(t, ch.TrySend(point{Seq: 1}))
	require.ErrorIs(t, ch.TrySend(point{Seq: 2}), ErrNotReady)

	wait, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ch.Ready(wait), context.DeadlineExceeded)

	peer, err := NewMsgPack[point, point](b, Options{})
	require.NoError(t, err)
	defer peer.Close()

	first, err := peer.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Seq)

	require.NoError(t, ch.Ready(ctx))
	require.NoError(t, ch.TrySend(point{Seq: 2}))

	second, err := peer.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, second.Seq)
}

func TestRecvEndOfStream(t *testing.T) {
	data := append(wire(t, map[string]any{"seq": 1}), 0, 0, 0, 0)
	data = append(data, wire(t, map[string]any{"seq": 2})...)
	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(data), Writer: io.Discard}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	var seqs []int
	for p, err := range ch.Messages(context.Background()) {
		require.NoError(t, err)
		seqs = append(seqs, p.Seq)
	}
	require.Equal(t, []int{1, 2}, seqs)

	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestRecvTruncatedStream(t *testing.T) {
	data := wire(t, map[string]any{"seq": 1})
	data = append(data, wire(t, map[string]any{"seq": 2})[:6]...)
	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(data), Writer: io.Discard}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	p, err := ch.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.Seq)

	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, frame.ErrTruncatedStream)
	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, frame.ErrTruncatedStream)
}

func TestRecvDecodeErrorIsSticky(t *testing.T) {
	cfg := frame.DefaultConfig()
	data, err := cfg.Append(nil, []byte{0xc1})
	require.NoError(t, err)
	data = append(data, wire(t, map[string]any{"seq": 1})...)

	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(data), Writer: io.Discard}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, codec.ErrDecode)
	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, codec.ErrDecode)
}

func TestRecvTrailingBytesInFrame(t *testing.T) {
	c := codec.MessagePack[point, point]()
	one, err := c.Encode(nil, point{Seq: 1})
	require.NoError(t, err)
	two, err := c.Encode(one, point{Seq: 2})
	require.NoError(t, err)
	cfg := frame.DefaultConfig()
	data, err := cfg.Append(nil, two)
	require.NoError(t, err)

	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(data), Writer: io.Discard}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, codec.ErrDecode)
}

func TestMessagesStopsOnOversizedFrame(t *testing.T) {
	data := wire(t, map[string]any{"seq": 1}, map[string]any{"seq": 2, "note": "this payload is too long"})
	reg := prometheus.NewRegistry()
	opts := Options{
		Frame:   frame.Config{MaxFrameLength: 16},
		Metrics: observability.NewMetrics(reg),
	}
	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(data), Writer: io.Discard}, opts)
	require.NoError(t, err)
	defer ch.Close()

	var (
		seqs []int
		errs []error
	)
	for p, err := range ch.Messages(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seqs = append(seqs, p.Seq)
	}
	require.Equal(t, []int{1}, seqs)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], frame.ErrOversizedFrame)

	_, err = ch.Recv(context.Background())
	require.ErrorIs(t, err, frame.ErrOversizedFrame)
}

func TestRecvCancelIsNotFatal(t *testing.T) {
	ca, cb := pipePair(t)

	wait, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cb.Recv(wait)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() { _ = ca.Send(context.Background(), point{Seq: 9}) }()
	p, err := cb.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9, p.Seq)
}

func TestEncodeErrorFailsOnlyThatWrite(t *testing.T) {
	var out bytes.Buffer
	ch, err := NewMsgPack[any, any](rwc{Reader: bytes.NewReader(nil), Writer: &out}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	require.ErrorIs(t, ch.TrySend(make(chan int)), codec.ErrEncode)
	require.NoError(t, ch.Send(context.Background(), map[string]int{"seq": 1}))
	require.NoError(t, ch.Flush(context.Background()))
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x06, 0x81, 0xa3, 0x73, 0x65, 0x71, 0x01}, out.Bytes())
}

func TestSendOversizedIsRejected(t *testing.T) {
	var out bytes.Buffer
	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(nil), Writer: &out}, Options{Frame: frame.Config{MaxFrameLength: 8}})
	require.NoError(t, err)
	defer ch.Close()

	err = ch.Send(context.Background(), point{Seq: 1, Note: "longer than eight bytes"})
	require.ErrorIs(t, err, frame.ErrOversizedFrame)
	require.NoError(t, ch.Flush(context.Background()))
	require.Zero(t, out.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteErrorIsSticky(t *testing.T) {
	ch, err := NewMsgPack[point, point](rwc{Reader: bytes.NewReader(nil), Writer: failingWriter{}}, Options{})
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.TrySend(point{Seq: 1}))
	require.EqualError(t, ch.Flush(context.Background()), "broken pipe")
	require.EqualError(t, ch.TrySend(point{Seq: 2}), "broken pipe")
}

func TestShutdownSignalsEndOfStream(t *testing.T) {
	ctx := context.Background()
	// net.Pipe has no half close; a TCP pair does.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	dialed, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	srv := <-accepted

	a, err := NewMsgPack[point, point](dialed, Options{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewMsgPack[point, point](srv, Options{})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(ctx, point{Seq: 1}))
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
	require.ErrorIs(t, a.TrySend(point{Seq: 2}), ErrWriteShutdown)

	var seqs []int
	for p, err := range b.Messages(ctx) {
		require.NoError(t, err)
		seqs = append(seqs, p.Seq)
	}
	require.Equal(t, []int{1}, seqs)

	// the read half of a is still open
	require.NoError(t, b.Send(ctx, point{Seq: 7}))
	p, err := a.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, p.Seq)
}

func TestCloseIsIdempotent(t *testing.T) {
	ca, _ := pipePair(t)
	require.NoError(t, ca.Close())
	require.NoError(t, ca.Close())

	_, err := ca.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, ca.TrySend(point{Seq: 1}), ErrClosed)
	require.ErrorIs(t, ca.Send(context.Background(), point{Seq: 1}), ErrClosed)
}

func TestReadyAfterClose(t *testing.T) {
	ca, _ := pipePair(t)
	require.NoError(t, ca.Close())
	// the write half is idle, so both select cases are ready every time
	for range 100 {
		require.ErrorIs(t, ca.Ready(context.Background()), ErrClosed)
		require.ErrorIs(t, ca.Flush(context.Background()), ErrClosed)
	}
}

func TestUnclosedChannelReleasesWriter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, b := net.Pipe()
	defer b.Close()
	func() {
		ch, err := NewMsgPack[point, point](a, Options{})
		require.NoError(t, err)
		// nobody reads b, so the writer stays blocked on this frame
		require.NoError(t, ch.TrySend(point{Seq: 1}))
	}()
	for range 5 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	_, err := a.Write([]byte{0})
	require.ErrorIs(t, err, io.ErrClosedPipe)
}
