package node

import (
	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/config"
	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mem"
	"github.com/zsl99a/netz/pkg/transport/mux"
	"github.com/zsl99a/netz/pkg/transport/quic"
	"github.com/zsl99a/netz/pkg/transport/tcp"
)

// ErrUnknownKind reports a transport kind no provider handles.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }

// TransportOptions carries process-wide state shared by transports.
type TransportOptions struct {
	// Mem is the in-process network used for kind "mem". A fresh one is
	// created when nil.
	Mem    *mem.Network
	Logger *zap.Logger
}

// NewTransport builds the provider selected by cfg.Kind.
func NewTransport(cfg config.TransportConfig, opts TransportOptions) (transport.Transport, error) {
	mo := muxOptions(cfg.Mux, opts.Logger)
	switch transport.ParseKind(cfg.Kind) {
	case transport.KindTCP:
		return tcp.New(tcp.Options{
			DialTimeout: cfg.TCP.DialTimeout,
			KeepAlive:   cfg.TCP.KeepAlive,
			Mux:         mo,
		}), nil
	case transport.KindQUIC:
		return quic.New(quic.Options{
			ServerName:         cfg.QUIC.ServerName,
			InsecureSkipVerify: cfg.QUIC.InsecureSkipVerify,
			ALPN:               cfg.QUIC.ALPN,
			KeepAlivePeriod:    cfg.QUIC.KeepAlivePeriod,
			MaxIdleTimeout:     cfg.QUIC.MaxIdleTimeout,
			MaxIncomingStreams: cfg.QUIC.MaxIncomingStreams,
		})
	case transport.KindMem:
		if opts.Mem != nil {
			return opts.Mem, nil
		}
		return mem.New(mo), nil
	case transport.KindWinPipe:
		return newWinPipeTransport(mo)
	default:
		return nil, ErrUnknownKind(cfg.Kind)
	}
}

func muxOptions(c config.MuxConfig, log *zap.Logger) mux.Options {
	return mux.Options{
		AcceptBacklog:       c.AcceptBacklog,
		KeepAliveInterval:   c.KeepAliveInterval,
		DisableKeepAlive:    c.DisableKeepAlive,
		MaxStreamWindowSize: c.MaxStreamWindowSize,
		StreamOpenTimeout:   c.StreamOpenTimeout,
		Logger:              log,
	}
}
