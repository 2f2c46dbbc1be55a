package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "netz",
		Short: "Typed framed channels over QUIC, TCP and in-process transports",
		Long: `netz exchanges length-delimited, MessagePack-encoded messages over
multiplexed transport connections.

Configuration comes from --config, NETZ_CONFIG or ./netz.yaml, and any key
can be overridden with NETZ_* environment variables (NETZ_LOG_LEVEL=debug).`,
		Version:      Version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	cmd.AddCommand(newServeCmd(opts), newSendCmd(opts))
	return cmd
}
