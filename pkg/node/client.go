package node

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zsl99a/netz/pkg/channel"
	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/transport"
)

// Client dials servers and exchanges messages with them.
type Client struct {
	tr    transport.ConnOpener
	opts  Options
	codec codec.Codec[Message, Message]
	log   *zap.Logger
}

func NewClient(tr transport.ConnOpener, opts Options) (*Client, error) {
	opts, c, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Client{tr: tr, opts: opts, codec: c, log: opts.Logger.Named("client")}, nil
}

// Result is the outcome of one Exchange.
type Result struct {
	Greeting Message
	Replies  []Message
}

// Exchange opens a connection to address, reads the server greeting, sends
// msgs on a new stream and collects the replies until the server ends the
// stream. The connection is closed on return.
func (cl *Client) Exchange(ctx context.Context, address string, msgs []Message) (Result, error) {
	c, err := cl.tr.Open(ctx, address)
	if err != nil {
		return Result{}, err
	}
	defer c.Close()
	cl.log.Info("connected", zap.String("addr", address), zap.Stringer("kind", c.Kind()))

	var res Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ch, err := channel.Accept(gctx, c, cl.codec, cl.opts.Channel)
		if err != nil {
			return fmt.Errorf("accept greeting: %w", err)
		}
		defer ch.Close()
		msg, err := ch.Recv(gctx)
		if err != nil {
			return fmt.Errorf("read greeting: %w", err)
		}
		res.Greeting = msg
		return nil
	})

	ch, err := channel.Open(gctx, c, cl.codec, cl.opts.Channel)
	if err != nil {
		_ = c.Close()
		_ = g.Wait()
		return Result{}, err
	}
	defer ch.Close()

	g.Go(func() error {
		for _, m := range msgs {
			if err := ch.Send(gctx, m); err != nil {
				return err
			}
		}
		return ch.Shutdown(gctx)
	})
	g.Go(func() error {
		for msg, err := range ch.Messages(gctx) {
			if err != nil {
				return err
			}
			res.Replies = append(res.Replies, msg)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}
