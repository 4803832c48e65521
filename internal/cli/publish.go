package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/cli/output"
	natsclient "github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging/nats"
)

var publishFile string

var publishCmd = &cobra.Command{
	Use:   "publish <topic> [payload]",
	Short: "Publish one message to the bus",
	Long: `Publishes a single message to a topic. The payload comes from the
second argument, from --file, or from stdin when both are absent.

Examples:
  sensorgrid publish sensors.temperature '{"device_id":"s1","temperature":21.5}'
  sensorgrid publish test.topic --file payload.json
  echo hello | sensorgrid publish test.topic`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishFile, "file", "", "read payload from file")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	topic := args[0]

	var payload []byte
	switch {
	case len(args) == 2:
		payload = []byte(args[1])
	case publishFile != "":
		data, err := os.ReadFile(publishFile)
		if err != nil {
			return fmt.Errorf("read payload file: %w", err)
		}
		payload = data
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read payload from stdin: %w", err)
		}
		payload = data
	}

	client, err := natsclient.NewClient(natsConfig(), newLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Publish(cmd.Context(), topic, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	output.Info("published %d bytes to %s", len(payload), topic)
	return nil
}

func natsConfig() natsclient.Config {
	return natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name + "-cli",
		Username:      cfg.NATS.Username,
		Password:      cfg.NATS.Password,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	}
}
