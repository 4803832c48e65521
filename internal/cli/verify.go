package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/cli/output"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/devstate"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/document"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/graph"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store/postgres"
)

var verifyLimit int

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Show recent data in each store",
	Long: `Connects to every configured store and prints the most recent
records, so a seeding run can be checked end to end without store-native
tooling.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 10, "rows to show per store")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("output")

	if err := verifyPostgres(ctx, format); err != nil {
		output.Errorf("postgres: %v", err)
	}
	if err := verifyOpenSearch(ctx, format); err != nil {
		output.Errorf("opensearch: %v", err)
	}
	if cfg.Neo4j.Enabled {
		if err := verifyNeo4j(ctx, format); err != nil {
			output.Errorf("neo4j: %v", err)
		}
	}
	if cfg.Redis.Enabled {
		if err := verifyRedis(ctx, format); err != nil {
			output.Errorf("redis: %v", err)
		}
	}
	return nil
}

func verifyPostgres(ctx context.Context, format string) error {
	repo, err := postgres.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer repo.Close()

	environmental, err := repo.RecentEnvironmental(ctx, verifyLimit)
	if err != nil {
		return err
	}
	readings, err := repo.RecentSensorReadings(ctx, verifyLimit)
	if err != nil {
		return err
	}

	output.Info("postgres: %d environmental rows, %d sensor readings",
		len(environmental), len(readings))

	envTable := output.NewTable([]string{"DEVICE", "TIME", "TEMP", "HUMIDITY", "LOCATION"})
	for _, r := range environmental {
		envTable.AddRow(r.DeviceID, r.RecordedAt.Format(time.RFC3339),
			floatCell(r.Temperature), floatCell(r.Humidity), r.Location)
	}
	if err := output.Render(format, environmental, envTable); err != nil {
		return err
	}

	readTable := output.NewTable([]string{"DEVICE", "TYPE", "TIME", "VALUE", "UNIT"})
	for _, r := range readings {
		readTable.AddRow(r.DeviceID, r.SensorType, r.Timestamp.Format(time.RFC3339),
			fmt.Sprint(r.Value), r.Unit)
	}
	return output.Render(format, readings, readTable)
}

func verifyOpenSearch(ctx context.Context, format string) error {
	docs, err := document.New(document.Config{
		URL:           cfg.OpenSearch.URL,
		Username:      cfg.OpenSearch.Username,
		Password:      cfg.OpenSearch.Password,
		Insecure:      cfg.OpenSearch.TLSSkipVerify,
		DataIndex:     cfg.OpenSearch.DataIndex,
		MetadataIndex: cfg.OpenSearch.MetadataIndex,
		AlertIndex:    cfg.OpenSearch.AlertIndex,
	})
	if err != nil {
		return err
	}

	recent, err := docs.RecentDocuments(ctx, verifyLimit)
	if err != nil {
		return err
	}

	output.Info("opensearch: %d recent documents", len(recent))
	table := output.NewTable([]string{"DEVICE", "SENSOR TYPE", "TIMESTAMP"})
	for _, doc := range recent {
		table.AddRow(stringField(doc, "device_id"), stringField(doc, "sensor_type"),
			stringField(doc, "timestamp"))
	}
	return output.Render(format, recent, table)
}

func verifyNeo4j(ctx context.Context, format string) error {
	g, err := graph.New(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		return err
	}
	defer g.Close(ctx)

	hierarchy, err := g.LocationHierarchy(ctx)
	if err != nil {
		return err
	}

	output.Info("neo4j: %d locations", len(hierarchy))
	table := output.NewTable([]string{"LOCATION", "DEVICES"})
	for _, loc := range hierarchy {
		table.AddRow(loc.Location, strings.Join(loc.Devices, ", "))
	}
	return output.Render(format, hierarchy, table)
}

func verifyRedis(ctx context.Context, format string) error {
	tracker, err := devstate.New(cfg.Redis.URL, cfg.Redis.TTL)
	if err != nil {
		return err
	}
	defer tracker.Close()

	devices, err := tracker.Devices(ctx, verifyLimit)
	if err != nil {
		return err
	}

	output.Info("redis: %d active devices", len(devices))
	table := output.NewTable([]string{"DEVICE", "LAST SEEN", "VALUES"})
	for _, d := range devices {
		table.AddRow(d.DeviceID, d.LastSeen.Format(time.RFC3339), valuesCell(d.Values))
	}
	return output.Render(format, devices, table)
}

func floatCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stringField(doc map[string]any, key string) string {
	if v, ok := doc[key]; ok {
		return fmt.Sprint(v)
	}
	return "-"
}

func valuesCell(values map[string]float64) string {
	parts := make([]string, 0, len(values))
	for name, v := range values {
		parts = append(parts, fmt.Sprintf("%s=%s", name, strconv.FormatFloat(v, 'f', -1, 64)))
	}
	return strings.Join(parts, " ")
}
