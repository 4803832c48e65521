package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest engine",
	Long: `Starts the ingest engine: connects to the message bus and every
configured store, runs database migrations, and processes sensor
messages until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	ctx := cmd.Context()

	e := engine.New(cfg, logger)
	if err := e.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	e.Stop(context.Background())
	return nil
}
