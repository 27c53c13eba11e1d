package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-gateway/frame"
)

func newSinkCmd() *cobra.Command {
	var (
		listen   string
		count    int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Listen for session frames on UDP and log each one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := toolLogger(logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, err := net.ListenPacket("udp", listen)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSink(ctx, conn, count, logger)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&listen, "listen", ":5001", "UDP address to receive frames on")
	fl.IntVar(&count, "count", 0, "exit after this many datagrams, 0 runs until interrupted")
	fl.StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}

// runSink reads datagrams from conn until ctx is done or count datagrams have
// arrived, and closes conn on return.
func runSink(ctx context.Context, conn net.PacketConn, count int, logger *zap.Logger) error {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Info("sink listening", zap.Stringer("addr", conn.LocalAddr()))
	buf := make([]byte, 64*1024)
	for seen := 0; count <= 0 || seen < count; seen++ {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		f, err := frame.Decode(buf[:n])
		if err != nil {
			logger.Warn("malformed frame",
				zap.Stringer("from", from),
				zap.Int("bytes", n),
				zap.Error(err),
			)
			continue
		}
		logger.Info("frame",
			zap.Stringer("from", from),
			zap.Uint8("header", f.Header),
			zap.Uint64("client_identifier", f.ClientIdentifier),
			zap.Uint32("session_id", f.SessionID),
			zap.Uint16("player_count", f.PlayerCount),
			zap.Strings("player_ids", f.PlayerIDs()),
		)
	}
	return nil
}
