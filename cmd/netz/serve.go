package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zsl99a/netz/pkg/node"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections, greet each peer and echo its messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(root.configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if listen == "" {
				listen = a.cfg.Transport.Listen
			}

			ctx := cmd.Context()
			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			l, err := a.transport.Listen(ctx, listen)
			if err != nil {
				return err
			}
			defer l.Close()
			a.log.Info("listening", zap.Stringer("kind", a.transport.Kind()), zap.Stringer("addr", l.Addr()))

			srv, err := node.NewServer(a.nodeOptions())
			if err != nil {
				return err
			}
			return srv.Serve(ctx, l)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default transport.listen)")
	return cmd
}
