// Package graph implements the graph store contract on Neo4j. Devices and
// locations are MERGE'd by natural key so repeated messages never create
// duplicate nodes; readings are append-only nodes hanging off their device.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// DefaultConfig returns a Config pointing at a local bolt endpoint.
func DefaultConfig() Config {
	return Config{
		URI:      "bolt://localhost:7687",
		Username: "neo4j",
		Database: "neo4j",
	}
}

// Store wraps a Neo4j driver with the graph operations the engine needs.
type Store struct {
	driver neo4j.DriverWithContext
	db     string
}

// New connects to Neo4j, verifies connectivity, and applies the schema
// constraints.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connection failed: %w", err)
	}

	s := &Store{driver: driver, db: cfg.Database}
	if err := s.ensureSchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("apply neo4j schema: %w", err)
	}
	return s, nil
}

// schemaStatements are uniqueness constraints on merge keys plus indexes
// on the reading fields the hierarchy queries filter by.
var schemaStatements = []string{
	"CREATE CONSTRAINT IF NOT EXISTS FOR (d:Device) REQUIRE d.device_id IS UNIQUE",
	"CREATE CONSTRAINT IF NOT EXISTS FOR (l:Location) REQUIRE l.name IS UNIQUE",
	"CREATE CONSTRAINT IF NOT EXISTS FOR (s:SensorType) REQUIRE s.type IS UNIQUE",
	"CREATE INDEX IF NOT EXISTS FOR (r:Reading) ON (r.timestamp)",
	"CREATE INDEX IF NOT EXISTS FOR (r:Reading) ON (r.sensor_type)",
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.db))
}

// UpsertDeviceNode merges the device node by id and refreshes its
// mutable attributes. Returns the device id.
func (s *Store) UpsertDeviceNode(ctx context.Context, attrs store.DeviceAttrs) (string, error) {
	if attrs.DeviceID == "" {
		return "", fmt.Errorf("device id is required")
	}

	query := `
	MERGE (d:Device {device_id: $device_id})
	SET d.device_type = $device_type,
	    d.status = $status,
	    d.last_seen = $last_seen,
	    d.updated_at = timestamp()
	RETURN d.device_id AS device_id`

	result, err := s.run(ctx, query, map[string]any{
		"device_id":   attrs.DeviceID,
		"device_type": attrs.DeviceType,
		"status":      attrs.Status,
		"last_seen":   attrs.LastSeen.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("upsert device node %s: %w", attrs.DeviceID, err)
	}
	if len(result.Records) == 0 {
		return "", fmt.Errorf("upsert device node %s: no record returned", attrs.DeviceID)
	}

	id, _, err := neo4j.GetRecordValue[string](result.Records[0], "device_id")
	if err != nil {
		return "", fmt.Errorf("upsert device node %s: %w", attrs.DeviceID, err)
	}
	return id, nil
}

// LinkDeviceToLocation merges the location node by name and ensures a
// LOCATED_IN relationship from the device. The relationship's since
// timestamp is set on first link and preserved afterwards.
func (s *Store) LinkDeviceToLocation(ctx context.Context, deviceID, location string) error {
	if location == "" {
		return nil
	}

	query := `
	MATCH (d:Device {device_id: $device_id})
	MERGE (l:Location {name: $location})
	ON CREATE SET l.type = 'sensor_location'
	SET l.updated_at = timestamp()
	MERGE (d)-[r:LOCATED_IN]->(l)
	SET r.since = coalesce(r.since, timestamp()),
	    r.updated_at = timestamp()
	RETURN l.name AS name`

	result, err := s.run(ctx, query, map[string]any{
		"device_id": deviceID,
		"location":  location,
	})
	if err != nil {
		return fmt.Errorf("link device %s to location %s: %w", deviceID, location, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("link device %s to location %s: device node not found", deviceID, location)
	}
	return nil
}

// RecordReading appends one reading node, links it to its device via
// GENERATED, and to its merged sensor-type node via OF_TYPE.
func (s *Store) RecordReading(ctx context.Context, r *store.GraphReading) error {
	query := `
	MATCH (d:Device {device_id: $device_id})
	CREATE (r:Reading {
	    timestamp: $timestamp,
	    sensor_type: $sensor_type,
	    value: $value,
	    unit: $unit
	})
	CREATE (d)-[:GENERATED]->(r)
	MERGE (st:SensorType {type: $sensor_type})
	MERGE (r)-[:OF_TYPE]->(st)
	RETURN elementId(r) AS reading_id`

	result, err := s.run(ctx, query, map[string]any{
		"device_id":   r.DeviceID,
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339),
		"sensor_type": r.SensorType,
		"value":       r.Value,
		"unit":        r.Unit,
	})
	if err != nil {
		return fmt.Errorf("record %s reading for %s: %w", r.SensorType, r.DeviceID, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("record %s reading for %s: device node not found", r.SensorType, r.DeviceID)
	}
	return nil
}

// LocationDevices summarizes which devices are at which location.
type LocationDevices struct {
	Location string
	Devices  []string
}

// LocationHierarchy lists locations with their devices, largest first.
// Used by the verify command.
func (s *Store) LocationHierarchy(ctx context.Context) ([]LocationDevices, error) {
	query := `
	MATCH (l:Location)<-[:LOCATED_IN]-(d:Device)
	RETURN l.name AS location,
	       collect(d.device_id) AS devices,
	       count(d) AS device_count
	ORDER BY device_count DESC`

	result, err := s.run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("query location hierarchy: %w", err)
	}

	out := make([]LocationDevices, 0, len(result.Records))
	for _, rec := range result.Records {
		name, _, err := neo4j.GetRecordValue[string](rec, "location")
		if err != nil {
			return nil, fmt.Errorf("decode location record: %w", err)
		}
		raw, _, err := neo4j.GetRecordValue[[]any](rec, "devices")
		if err != nil {
			return nil, fmt.Errorf("decode location record: %w", err)
		}
		devices := make([]string, 0, len(raw))
		for _, v := range raw {
			if id, ok := v.(string); ok {
				devices = append(devices, id)
			}
		}
		out = append(out, LocationDevices{Location: name, Devices: devices})
	}
	return out, nil
}

// Close releases the driver's connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
