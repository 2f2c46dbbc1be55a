package node

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zsl99a/netz/pkg/channel"
	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/transport"
)

// Server accepts connections and serves their streams.
type Server struct {
	opts  Options
	codec codec.Codec[Message, Message]
	peers *transport.Manager
	log   *zap.Logger
}

func NewServer(opts Options) (*Server, error) {
	opts, c, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:  opts,
		codec: c,
		peers: transport.NewManager(),
		log:   opts.Logger.Named("server"),
	}, nil
}

// Peers returns the table of live connections.
func (s *Server) Peers() *transport.Manager { return s.peers }

// Serve accepts connections from l until ctx is canceled or l fails. It
// closes every tracked connection and waits for their handlers before
// returning. A canceled ctx is not reported as an error; l is left open.
func (s *Server) Serve(ctx context.Context, l transport.ConnAcceptor) error {
	s.log.Info("serving", zap.Stringer("addr", l.Addr()))
	var g errgroup.Group
	defer func() {
		_ = s.peers.CloseAll()
		_ = g.Wait()
	}()

	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", zap.Stringer("addr", l.Addr()), zap.Error(err))
			return err
		}
		id := uuid.NewString()
		s.opts.Metrics.ConnAccepted(c.Kind().String())
		s.opts.Metrics.ConnOpened()
		if old := s.peers.Add(id, c); old != nil {
			_ = old.Close()
		}
		g.Go(func() error {
			s.serveConn(ctx, id, c)
			return nil
		})
	}
}

func (s *Server) serveConn(ctx context.Context, id string, c transport.Conn) {
	log := s.log.With(zap.String("conn", id), zap.Stringer("kind", c.Kind()), zap.Stringer("remote", c.RemoteAddr()))
	log.Info("inbound connection")
	defer func() {
		s.peers.Remove(id, c)
		_ = c.Close()
		s.opts.Metrics.ConnClosed()
		log.Info("connection closed")
	}()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.greet(ctx, c); err != nil {
			log.Debug("greeting failed", zap.Error(err))
		}
		return nil
	})

	for {
		st, err := c.AcceptStream(ctx)
		if err != nil {
			if !transport.IsConnEnded(err) && ctx.Err() == nil {
				log.Warn("accept stream failed", zap.Error(err))
			}
			break
		}
		s.opts.Metrics.StreamAccepted(c.Kind().String())
		g.Go(func() error {
			s.echo(ctx, log, st)
			return nil
		})
	}
	// unblock streams still waiting on the peer
	_ = c.Close()
	_ = g.Wait()
}

// greet opens a stream to the peer and sends a single hello.
func (s *Server) greet(ctx context.Context, c transport.Conn) error {
	ch, err := channel.Open(ctx, c, s.codec, s.opts.Channel)
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Send(ctx, Message{Kind: KindHello, From: s.opts.Name}); err != nil {
		return err
	}
	return ch.Shutdown(ctx)
}

// echo answers every message on st until the peer ends the stream.
func (s *Server) echo(ctx context.Context, log *zap.Logger, st transport.Stream) {
	ch, err := channel.New[Message, Message](st, s.codec, s.codec, s.opts.Channel)
	if err != nil {
		_ = st.Close()
		return
	}
	defer ch.Close()

	for msg, err := range ch.Messages(ctx) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("stream read failed", zap.Error(err))
			}
			return
		}
		reply := msg
		reply.Kind = KindEcho
		reply.From = s.opts.Name
		if err := ch.Send(ctx, reply); err != nil {
			log.Debug("stream write failed", zap.Error(err))
			return
		}
	}
	if err := ch.Shutdown(ctx); err != nil {
		log.Debug("stream shutdown failed", zap.Error(err))
	}
}
