package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/clickr/internal/ipc"
)

const pingTimeout = 5 * time.Second

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the connected client",
	Long: `Signal a running 'clickr host' on this machine to push a ping to its
client. If no client is connected the ping is dropped.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	if err := ipc.Send(ctx, cfg.IPC.Socket, ipc.SignalByte); err != nil {
		return err
	}
	logger.Debug("ping sent", "socket", cfg.IPC.Socket)
	return nil
}
