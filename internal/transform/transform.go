// Package transform maps envelopes into the exact record shape each
// persistence backend expects. Transformers are pure functions; a false
// return means the target store is not applicable to that envelope and
// the write is skipped entirely.
//
// Field resolution is uniform: prefer the envelope's own value, fall back
// to a named default, and omit the field when no default is defined.
// Absent numeric fields stay nil so destination schemas never see
// fabricated zeros.
package transform

import (
	"encoding/json"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
)

// Defaults names the fallback values applied when an envelope omits a
// field that the destination schema requires.
type Defaults struct {
	DeviceID string
	Location string
}

// ProductionDefaults apply to messages arriving on dedicated sensor
// topics.
var ProductionDefaults = Defaults{DeviceID: "unknown", Location: "unknown"}

// CatchAllDefaults apply to messages arriving on the test topic.
var CatchAllDefaults = Defaults{DeviceID: "test_device", Location: "test_location"}

// EnvironmentalReading builds the relational record for temperature and
// humidity telemetry. It returns false when neither value is present:
// such a message yields no relational write at all rather than a row of
// nulls.
func EnvironmentalReading(env *envelope.Envelope, d Defaults) (*store.EnvironmentalReading, bool) {
	temperature := env.FloatPtr("temperature")
	humidity := env.FloatPtr("humidity")
	if temperature == nil && humidity == nil {
		return nil, false
	}

	return &store.EnvironmentalReading{
		DeviceID:    env.StringOr("device_id", d.DeviceID),
		RecordedAt:  env.Timestamp(),
		Temperature: temperature,
		Humidity:    humidity,
		Location:    env.StringOr("location", d.Location),
		Metadata: map[string]any{
			"topic":    env.Topic,
			"raw_data": env.Fields,
		},
	}, true
}

// AirQualityDocument builds the document-store record for air-quality
// telemetry. It is always written for this kind, however many of the
// pollutant fields are present.
func AirQualityDocument(env *envelope.Envelope, d Defaults) *store.SensorDocument {
	deviceID := env.StringOr("device_id", d.DeviceID)
	ts := env.Timestamp()

	body := map[string]any{
		"device_id":   deviceID,
		"sensor_type": "air_quality",
		"location":    env.StringOr("location", d.Location),
		"timestamp":   ts,
		"metadata":    env.Fields,
	}
	putFloat(body, env, "pm2_5")
	putFloat(body, env, "pm10")
	putFloat(body, env, "co2")
	putFloat(body, env, "aqi")

	return &store.SensorDocument{
		DeviceID:   deviceID,
		SensorType: "air_quality",
		Timestamp:  ts,
		Body:       body,
	}
}

// DeviceStatusDocument builds the document-store record for device
// status/health telemetry.
func DeviceStatusDocument(env *envelope.Envelope, d Defaults) *store.SensorDocument {
	deviceID := env.StringOr("device_id", d.DeviceID)
	ts := env.Timestamp()

	body := map[string]any{
		"device_id":   deviceID,
		"sensor_type": "device_status",
		"timestamp":   ts,
		"raw_data":    env.Fields,
	}
	if status, ok := env.String("status"); ok {
		body["status"] = status
	}
	putFloat(body, env, "battery_level")
	putFloat(body, env, "signal_strength")
	putFloat(body, env, "uptime")

	return &store.SensorDocument{
		DeviceID:   deviceID,
		SensorType: "device_status",
		Timestamp:  ts,
		Body:       body,
	}
}

// DeviceStatusReading builds the generic relational record for device
// status telemetry. Value resolution: battery level when the field is
// present, otherwise the status string; unit is "percent" or "status"
// accordingly. Returns false when neither resolves, skipping the
// relational write.
func DeviceStatusReading(env *envelope.Envelope, d Defaults) (*store.SensorReading, bool) {
	var value any
	unit := "status"
	if env.Has("battery_level") {
		unit = "percent"
		if battery, ok := env.Float("battery_level"); ok {
			value = battery
		}
	}
	if value == nil {
		if status, ok := env.String("status"); ok {
			value = status
		}
	}
	if value == nil {
		return nil, false
	}

	raw, _ := json.Marshal(env.Fields)
	return &store.SensorReading{
		DeviceID:   env.StringOr("device_id", d.DeviceID),
		SensorType: "device_status",
		Timestamp:  env.Timestamp(),
		Value:      value,
		Unit:       unit,
		Location:   env.StringOr("location", d.Location),
		Topic:      env.Topic,
		RawData:    raw,
	}, true
}

// UnclassifiedDocument wraps a catch-all message with no recognizable
// fields for the document store, preserving the field mapping verbatim.
func UnclassifiedDocument(env *envelope.Envelope, d Defaults) *store.SensorDocument {
	deviceID := env.StringOr("device_id", d.DeviceID)
	ts := env.Timestamp()

	return &store.SensorDocument{
		DeviceID:   deviceID,
		SensorType: "test",
		Timestamp:  ts,
		Body: map[string]any{
			"device_id":   deviceID,
			"sensor_type": "test",
			"timestamp":   ts,
			"data":        env.Fields,
		},
	}
}

// GraphUpdate is the set of graph-store operations derived from one
// envelope: a device upsert, an optional location link and zero or more
// readings.
type GraphUpdate struct {
	Device   store.DeviceAttrs
	Location string
	Readings []store.GraphReading
}

// graph reading units per measured field
var graphUnits = []struct {
	field string
	unit  string
}{
	{"temperature", "celsius"},
	{"humidity", "percent"},
	{"pm2_5", "µg/m³"},
	{"pm10", "µg/m³"},
	{"co2", "ppm"},
}

// EnvironmentalGraph derives the graph operations for environmental
// telemetry: merge the device node, link its location and record one
// reading per present measured value.
func EnvironmentalGraph(env *envelope.Envelope, d Defaults) *GraphUpdate {
	deviceID := env.StringOr("device_id", d.DeviceID)
	ts := env.Timestamp()

	u := &GraphUpdate{
		Device: store.DeviceAttrs{
			DeviceID:   deviceID,
			DeviceType: "environmental_sensor",
			Status:     "active",
			LastSeen:   ts,
		},
	}
	if location, ok := env.String("location"); ok {
		u.Location = location
	}

	for _, g := range graphUnits {
		if v, ok := env.Float(g.field); ok {
			u.Readings = append(u.Readings, store.GraphReading{
				DeviceID:   deviceID,
				SensorType: g.field,
				Value:      v,
				Unit:       g.unit,
				Timestamp:  ts,
			})
		}
	}
	return u
}

// DeviceStatusGraph derives the graph operations for device status
// telemetry: merge the device node with its reported status and record a
// battery reading when one is present.
func DeviceStatusGraph(env *envelope.Envelope, d Defaults) *GraphUpdate {
	deviceID := env.StringOr("device_id", d.DeviceID)
	ts := env.Timestamp()

	u := &GraphUpdate{
		Device: store.DeviceAttrs{
			DeviceID:   deviceID,
			DeviceType: "environmental_sensor",
			Status:     env.StringOr("status", "active"),
			LastSeen:   ts,
		},
	}
	if location, ok := env.String("location"); ok {
		u.Location = location
	}
	if battery, ok := env.Float("battery_level"); ok {
		u.Readings = append(u.Readings, store.GraphReading{
			DeviceID:   deviceID,
			SensorType: "battery_level",
			Value:      battery,
			Unit:       "percent",
			Timestamp:  ts,
		})
	}
	return u
}

func putFloat(body map[string]any, env *envelope.Envelope, key string) {
	if v, ok := env.Float(key); ok {
		body[key] = v
	}
}
