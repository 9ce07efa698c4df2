package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"volowatch/internal/app"
	"volowatch/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the watcher until SIGINT/SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runWatcher,
}

func runWatcher(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(config.NewManager(cfgPath))
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// contextOr keeps commands usable when executed without ExecuteContext.
func contextOr(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
