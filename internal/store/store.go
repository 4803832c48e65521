// Package store defines the narrow operation contracts the routing engine
// uses against each persistence backend, decoupled from the backends'
// native clients. Record types here are ephemeral value objects: one shape
// per (store, kind) pair, built by a transformer, consumed by exactly one
// write call, never shared across stores.
package store

import (
	"context"
	"time"
)

// EnvironmentalReading is the relational record for temperature/humidity
// telemetry. Pointer fields stay nil when the reading was absent from the
// payload; they are never coerced to zero.
type EnvironmentalReading struct {
	DeviceID    string
	RecordedAt  time.Time
	Temperature *float64
	Humidity    *float64
	PM25        *float64
	PM10        *float64
	CO2         *float64
	Location    string

	// Metadata carries the originating topic and the full raw envelope,
	// stored as a JSONB column.
	Metadata map[string]any
}

// SensorReading is the generic relational record used for device-status
// telemetry. Value is either a battery level (float64) or a status string;
// Unit says which.
type SensorReading struct {
	DeviceID   string
	SensorType string
	Timestamp  time.Time
	Value      any
	Unit       string
	Location   string
	Topic      string

	// RawData is the envelope fields serialized as JSON text.
	RawData []byte
}

// SensorDocument is a document-store record. Body is the full document;
// DeviceID and SensorType are lifted out for the device-metadata upsert
// side effect and for logging.
type SensorDocument struct {
	DeviceID   string
	SensorType string
	Timestamp  time.Time
	Body       map[string]any
}

// Alert is a passive alert-sink record. The engine never generates alerts
// itself; the index only receives what external tooling publishes.
type Alert struct {
	DeviceID  string
	Message   string
	Severity  string
	Timestamp time.Time
	Resolved  bool
}

// DeviceAttrs describes a device node for the graph store. Nodes are
// merged by device id, never duplicated.
type DeviceAttrs struct {
	DeviceID   string
	DeviceType string
	Status     string
	LastSeen   time.Time
}

// GraphReading is a single measured value recorded against a device node.
type GraphReading struct {
	DeviceID   string
	SensorType string
	Value      float64
	Unit       string
	Timestamp  time.Time
}

// Relational is the contract over the relational backend.
type Relational interface {
	InsertEnvironmentalReading(ctx context.Context, r *EnvironmentalReading) error
	InsertSensorReading(ctx context.Context, r *SensorReading) error
}

// Document is the contract over the document backend. A successful insert
// also merge-upserts the device-metadata document for the record's device.
type Document interface {
	InsertSensorDocument(ctx context.Context, doc *SensorDocument) (string, error)
}

// Graph is the contract over the graph backend. Device and location nodes
// are merged by natural key.
type Graph interface {
	UpsertDeviceNode(ctx context.Context, attrs DeviceAttrs) (string, error)
	LinkDeviceToLocation(ctx context.Context, deviceID, location string) error
	RecordReading(ctx context.Context, r *GraphReading) error
}
