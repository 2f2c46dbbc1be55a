package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zsl99a/netz/pkg/node"
)

type sendOptions struct {
	to    string
	count int
	body  string
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dial a server and exchange a batch of messages",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if opts.count < 1 {
				return errors.New("--count must be at least 1")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(root.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			to := opts.to
			if to == "" {
				to = a.target()
			}
			cl, err := node.NewClient(a.transport, a.nodeOptions())
			if err != nil {
				return err
			}

			msgs := make([]node.Message, opts.count)
			for i := range msgs {
				msgs[i] = node.Message{Seq: uint64(i + 1), Kind: node.KindData, From: a.cfg.AppName, Body: opts.body}
			}
			res, err := cl.Exchange(cmd.Context(), to, msgs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "greeting from %s\n", res.Greeting.From)
			for _, r := range res.Replies {
				fmt.Fprintf(out, "%s #%d from %s: %s\n", r.Kind, r.Seq, r.From, r.Body)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.to, "to", "", "server address (default first configured peer, else transport.listen)")
	cmd.Flags().IntVar(&opts.count, "count", 1, "number of messages to send")
	cmd.Flags().StringVar(&opts.body, "body", "ping", "message body")
	return cmd
}

// target picks the first configured peer, falling back to the local listen
// address.
func (a *app) target() string {
	if len(a.cfg.Transport.Peers) > 0 {
		return a.cfg.Transport.Peers[0].Address
	}
	return a.cfg.Transport.Listen
}
