package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-gateway/config"
	"session-gateway/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sessiongw",
		Short:        "HTTP/RPC to UDP session frame gateway",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newSendCmd(), newSinkCmd())
	return root
}

// toolLogger is the console logger used by the send and sink helpers.
func toolLogger(level string) (*zap.Logger, error) {
	return logging.New(config.LogConfig{Level: level, Format: "console"})
}
