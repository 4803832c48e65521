package cli

import (
	"time"

	"github.com/spf13/cobra"

	natsclient "github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging/nats"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/seeder"
)

var (
	seedCount    int
	seedInterval time.Duration
	seedDevices  int
	seedTopics   []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic sensor traffic",
	Long: `Generates realistic sensor payloads and publishes them to the bus.

Examples:
  # 100 messages across all topics
  sensorgrid seed

  # Sustained temperature traffic from a small fleet
  sensorgrid seed --count 5000 --interval 10ms --devices 5 --topic sensors.temperature`,
	RunE: runSeed,
}

func init() {
	defaults := seeder.DefaultConfig()
	seedCmd.Flags().IntVar(&seedCount, "count", defaults.Count, "number of messages to publish")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", defaults.Interval, "pause between messages")
	seedCmd.Flags().IntVar(&seedDevices, "devices", defaults.DeviceCount, "size of the synthetic device pool")
	seedCmd.Flags().StringSliceVar(&seedTopics, "topic", nil, "topics to publish to (default: all)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	client, err := natsclient.NewClient(natsConfig(), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	runner := seeder.NewRunner(seeder.Config{
		Topics:      seedTopics,
		Count:       seedCount,
		Interval:    seedInterval,
		DeviceCount: seedDevices,
	}, client, logger)

	return runner.Run(cmd.Context())
}
