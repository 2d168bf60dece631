package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "blockrelay",
		Short:         "Relay append-only block files through a broker and rebuild them elsewhere",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "path to YAML config (BLOCKRELAY_* env vars override it)")
	cmd.AddCommand(
		newRelayCommand(),
		newWriteCommand(),
		newVerifyCommand(),
		newCheckpointCommand(),
	)
	return cmd
}
