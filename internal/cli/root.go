// Package cli wires the sensorgrid command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/config"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sensorgrid",
	Short: "SensorGrid ingest engine",
	Long: `sensorgrid runs the IoT sensor ingest engine and its supporting
tooling.

The engine subscribes to the sensor topics on the message bus,
classifies each message, and fans the transformed records out to
PostgreSQL, OpenSearch, and Neo4j.`,
	Version: "0.1.0",
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/sensorgrid/config.yaml)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
}
