// Package document implements the document store contract on OpenSearch.
// Three indices are maintained: sensor-data holds one document per
// reading, device-metadata holds one merge-upserted document per device,
// and sensor-alerts is a passive alert sink.
package document

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool

	// Index names; DefaultConfig values are used when empty.
	DataIndex     string
	MetadataIndex string
	AlertIndex    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Insecure:      true,
		DataIndex:     "sensor-data",
		MetadataIndex: "device-metadata",
		AlertIndex:    "sensor-alerts",
	}
}

// Store wraps the OpenSearch client with the operations the engine needs.
type Store struct {
	client *opensearch.Client
	cfg    Config
}

// New creates a Store and verifies connectivity.
func New(cfg Config) (*Store, error) {
	if cfg.DataIndex == "" {
		cfg.DataIndex = "sensor-data"
	}
	if cfg.MetadataIndex == "" {
		cfg.MetadataIndex = "device-metadata"
	}
	if cfg.AlertIndex == "" {
		cfg.AlertIndex = "sensor-alerts"
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &Store{client: client, cfg: cfg}, nil
}

// InsertSensorDocument indexes one reading document and, on success,
// merge-upserts the device-metadata document for the record's device.
// Returns the generated document id.
func (s *Store) InsertSensorDocument(ctx context.Context, doc *store.SensorDocument) (string, error) {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	res, err := s.client.Index(
		s.cfg.DataIndex,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("index document: %s - %s", res.Status(), string(raw))
	}

	var indexed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&indexed); err != nil {
		return "", fmt.Errorf("decode index response: %w", err)
	}

	if err := s.upsertDeviceMetadata(ctx, doc); err != nil {
		// The reading itself is stored; metadata drift is tolerable.
		return indexed.ID, fmt.Errorf("upsert device metadata: %w", err)
	}
	return indexed.ID, nil
}

// metadataValueFields are the measured values mirrored into the
// device-metadata document.
var metadataValueFields = []string{"temperature", "humidity", "pm2_5", "pm10", "co2"}

// upsertDeviceMetadata merges the latest observation into the per-device
// metadata document. Only fields present in this message are sent, so
// fields the message omitted survive from earlier upserts.
func (s *Store) upsertDeviceMetadata(ctx context.Context, doc *store.SensorDocument) error {
	if doc.DeviceID == "" {
		return nil
	}

	meta := map[string]any{
		"device_id": doc.DeviceID,
		"last_seen": time.Now().UTC(),
	}

	lastValues := make(map[string]any)
	var sensorTypes []string
	for _, f := range metadataValueFields {
		if v, ok := doc.Body[f]; ok {
			lastValues[f] = v
			sensorTypes = append(sensorTypes, f)
		}
	}
	if len(lastValues) > 0 {
		meta["last_values"] = lastValues
	}
	if len(sensorTypes) > 0 {
		meta["sensor_types"] = sensorTypes
	}
	if location, ok := doc.Body["location"]; ok {
		meta["location"] = location
	}

	update := map[string]any{
		"doc":           meta,
		"doc_as_upsert": true,
	}
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	res, err := s.client.Update(
		s.cfg.MetadataIndex,
		doc.DeviceID,
		bytes.NewReader(body),
		s.client.Update.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s - %s", res.Status(), string(raw))
	}
	return nil
}

// InsertAlert indexes one alert document. The engine never generates
// alerts; this is a passive sink for external tooling.
func (s *Store) InsertAlert(ctx context.Context, alert *store.Alert) (string, error) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(map[string]any{
		"device_id": alert.DeviceID,
		"message":   alert.Message,
		"severity":  alert.Severity,
		"timestamp": alert.Timestamp,
		"resolved":  alert.Resolved,
	})
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}

	res, err := s.client.Index(
		s.cfg.AlertIndex,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("index alert: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("index alert: %s - %s", res.Status(), string(raw))
	}

	var indexed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&indexed); err != nil {
		return "", fmt.Errorf("decode index response: %w", err)
	}
	return indexed.ID, nil
}

// RecentDocuments returns the most recent reading documents, newest
// first. Used by the verify command.
func (s *Store) RecentDocuments(ctx context.Context, limit int) ([]map[string]any, error) {
	query := map[string]any{
		"size": limit,
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc", "unmapped_type": "date"}},
		},
		"query": map[string]any{"match_all": map[string]any{}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.cfg.DataIndex),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search documents: %s - %s", res.Status(), string(raw))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]map[string]any, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}

// DeviceMetadata fetches the metadata document for one device, or nil
// when the device has never been seen.
func (s *Store) DeviceMetadata(ctx context.Context, deviceID string) (map[string]any, error) {
	res, err := s.client.Get(
		s.cfg.MetadataIndex,
		deviceID,
		s.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get device metadata: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get device metadata: %s - %s", res.Status(), string(raw))
	}

	var result struct {
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	return result.Source, nil
}
