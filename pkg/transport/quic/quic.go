// Package quic provides transport connections over QUIC. Every QUIC
// connection natively carries many bidirectional streams.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/zsl99a/netz/pkg/transport"
)

// DefaultALPN is the application protocol negotiated during the handshake.
const DefaultALPN = "netz"

var aLongTimeAgo = time.Unix(1, 0)

// Options configures the QUIC transport. Certificate management is left to
// the caller: without ServerTLS a short-lived self-signed certificate is
// generated, and without ClientTLS the client skips verification when
// InsecureSkipVerify is set.
type Options struct {
	ServerTLS          *tls.Config
	ClientTLS          *tls.Config
	ServerName         string
	InsecureSkipVerify bool
	ALPN               []string

	KeepAlivePeriod    time.Duration
	MaxIdleTimeout     time.Duration
	MaxIncomingStreams int64
}

// Transport dials and listens for QUIC connections.
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	conf      *quicgo.Config
}

var _ transport.Transport = (*Transport)(nil)

// New builds a Transport from opts.
func New(opts Options) (*Transport, error) {
	alpn := opts.ALPN
	if len(alpn) == 0 {
		alpn = []string{DefaultALPN}
	}

	serverTLS := opts.ServerTLS
	if serverTLS == nil {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		serverTLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	serverTLS = serverTLS.Clone()
	if len(serverTLS.NextProtos) == 0 {
		serverTLS.NextProtos = alpn
	}
	serverTLS.MinVersion = tls.VersionTLS13

	clientTLS := opts.ClientTLS
	if clientTLS == nil {
		// NOTE: peers with self-signed certificates need InsecureSkipVerify.
		clientTLS = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
	}
	clientTLS = clientTLS.Clone()
	if len(clientTLS.NextProtos) == 0 {
		clientTLS.NextProtos = alpn
	}
	if clientTLS.ServerName == "" {
		clientTLS.ServerName = opts.ServerName
	}
	clientTLS.MinVersion = tls.VersionTLS13

	return &Transport{
		serverTLS: serverTLS,
		clientTLS: clientTLS,
		conf: &quicgo.Config{
			KeepAlivePeriod:    opts.KeepAlivePeriod,
			MaxIdleTimeout:     opts.MaxIdleTimeout,
			MaxIncomingStreams: opts.MaxIncomingStreams,
		},
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(_ context.Context, address string) (transport.ConnAcceptor, error) {
	l, err := quicgo.ListenAddr(address, t.serverTLS, t.conf)
	if err != nil {
		return nil, err
	}
	return &listener{l: l}, nil
}

func (t *Transport) Open(ctx context.Context, address string) (transport.Conn, error) {
	c, err := quicgo.DialAddr(ctx, address, t.clientTLS, t.conf)
	if err != nil {
		return nil, &transport.ConnectError{Kind: transport.KindQUIC, Address: address, Err: err}
	}
	return &conn{c: c}, nil
}

// ---- Listener ----

type listener struct {
	l         *quicgo.Listener
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	c, err := l.l.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, quicgo.ErrServerClosed) {
			err = transport.ErrClosed
		}
		return nil, &transport.AcceptError{Kind: transport.KindQUIC, Address: l.l.Addr().String(), Err: err}
	}
	return &conn{c: c}, nil
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.l.Close() })
	return err
}

// ---- Connection/Streams ----

type conn struct {
	c *quicgo.Conn
}

func (c *conn) Kind() transport.Kind { return transport.KindQUIC }
func (c *conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// OpenStream opens a bidirectional stream. QUIC announces a stream to the
// peer with its first frame, so the peer's AcceptStream returns once data
// has been written.
func (c *conn) OpenStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.c.OpenStreamSync(ctx)
	if err != nil {
		return nil, connErr(err)
	}
	return &stream{s}, nil
}

func (c *conn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.c.AcceptStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, connErr(err)
	}
	return &stream{s}, nil
}

func (c *conn) Close() error { return c.c.CloseWithError(0, "") }

// connErr maps a close with application error code 0 to io.EOF.
func connErr(err error) error {
	var appErr *quicgo.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == 0 {
		return io.EOF
	}
	return err
}

// stream adapts a QUIC stream: its Close only closes the send direction.
type stream struct {
	*quicgo.Stream
}

func (s *stream) CloseWrite() error { return s.Stream.Close() }

func (s *stream) Close() error {
	_ = s.Stream.SetReadDeadline(aLongTimeAgo)
	s.Stream.CancelRead(0)
	return s.Stream.Close()
}

// ---- Helpers ----

// selfSignedCert generates a short-lived self-signed TLS certificate for
// local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
