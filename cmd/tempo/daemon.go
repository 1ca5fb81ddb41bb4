package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run decision cycles continuously",
	Long: `Run the engine loop until interrupted. Each tick honors the
daemon_enabled kill switch, so flipping it off in config stops all
activity without killing the process.

Examples:
  tempo daemon
  TEMPO_DAEMON_ENABLED=true tempo daemon -v`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.DaemonEnabled {
		fmt.Println("daemon_enabled is false; cycles will idle until it is turned on")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
