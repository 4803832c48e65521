package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/classify"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/transform"
)

type fakeRelational struct {
	mu            sync.Mutex
	environmental []*store.EnvironmentalReading
	readings      []*store.SensorReading
	err           error
	panicMsg      string
}

func (f *fakeRelational) InsertEnvironmentalReading(_ context.Context, r *store.EnvironmentalReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	f.environmental = append(f.environmental, r)
	return nil
}

func (f *fakeRelational) InsertSensorReading(_ context.Context, r *store.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, r)
	return nil
}

type fakeDocument struct {
	mu   sync.Mutex
	docs []*store.SensorDocument
	err  error
}

func (f *fakeDocument) InsertSensorDocument(_ context.Context, doc *store.SensorDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.docs = append(f.docs, doc)
	return "doc-1", nil
}

type fakeGraph struct {
	devices   []store.DeviceAttrs
	locations map[string]string
	readings  []*store.GraphReading
}

func (f *fakeGraph) UpsertDeviceNode(_ context.Context, attrs store.DeviceAttrs) (string, error) {
	f.devices = append(f.devices, attrs)
	return attrs.DeviceID, nil
}

func (f *fakeGraph) LinkDeviceToLocation(_ context.Context, deviceID, location string) error {
	if f.locations == nil {
		f.locations = make(map[string]string)
	}
	f.locations[deviceID] = location
	return nil
}

func (f *fakeGraph) RecordReading(_ context.Context, r *store.GraphReading) error {
	f.readings = append(f.readings, r)
	return nil
}

type fakeTracker struct {
	touched []string
}

func (f *fakeTracker) Touch(_ context.Context, deviceID string, _ time.Time, _ map[string]float64) error {
	f.touched = append(f.touched, deviceID)
	return nil
}

func newEnv(topic, payload string) *envelope.Envelope {
	return envelope.Decode(topic, []byte(payload), time.Now())
}

func TestProcess_Temperature(t *testing.T) {
	rel := &fakeRelational{}
	doc := &fakeDocument{}
	c := New(rel, doc, nil, nil, slog.Default())

	env := newEnv("sensors.temperature", `{"device_id":"s1","temperature":25.5,"humidity":60,"location":"room_a"}`)
	c.Process(context.Background(), classify.KindTemperature, env, transform.ProductionDefaults)

	require.Len(t, rel.environmental, 1)
	assert.Equal(t, "s1", rel.environmental[0].DeviceID)
	assert.Empty(t, doc.docs, "temperature kind must not write the document store")
}

func TestProcess_TemperatureWithoutValuesIsNoOp(t *testing.T) {
	rel := &fakeRelational{}
	c := New(rel, &fakeDocument{}, nil, nil, slog.Default())

	env := newEnv("sensors.temperature", `{"device_id":"s1","location":"room_a"}`)
	c.Process(context.Background(), classify.KindTemperature, env, transform.ProductionDefaults)

	assert.Empty(t, rel.environmental, "no relational write when both readings absent")
}

func TestProcess_AirQuality(t *testing.T) {
	doc := &fakeDocument{}
	c := New(&fakeRelational{}, doc, nil, nil, slog.Default())

	env := newEnv("sensors.air_quality", `{"device_id":"aq1","pm2_5":12}`)
	c.Process(context.Background(), classify.KindAirQuality, env, transform.ProductionDefaults)

	require.Len(t, doc.docs, 1)
	assert.Equal(t, "air_quality", doc.docs[0].SensorType)
}

func TestProcess_DeviceStatusWritesBothStores(t *testing.T) {
	rel := &fakeRelational{}
	doc := &fakeDocument{}
	c := New(rel, doc, nil, nil, slog.Default())

	env := newEnv("sensors.device.status", `{"device_id":"d1","status":"online","battery_level":85}`)
	c.Process(context.Background(), classify.KindDeviceStatus, env, transform.ProductionDefaults)

	require.Len(t, doc.docs, 1)
	require.Len(t, rel.readings, 1)
	assert.Equal(t, 85.0, rel.readings[0].Value)
	assert.Equal(t, "percent", rel.readings[0].Unit)
}

func TestProcess_FanOutIsolation(t *testing.T) {
	// Document write fails; the relational write for the same envelope
	// must still be attempted.
	rel := &fakeRelational{}
	doc := &fakeDocument{err: errors.New("document store down")}
	c := New(rel, doc, nil, nil, slog.Default())

	env := newEnv("sensors.device.status", `{"device_id":"d1","battery_level":42}`)
	c.Process(context.Background(), classify.KindDeviceStatus, env, transform.ProductionDefaults)

	require.Len(t, rel.readings, 1, "second store write must run despite first store failure")
}

func TestProcess_PanicIsolated(t *testing.T) {
	rel := &fakeRelational{panicMsg: "driver blew up"}
	doc := &fakeDocument{}
	c := New(rel, doc, nil, nil, slog.Default())

	env := newEnv("sensors.device.status", `{"device_id":"d1","status":"online"}`)
	// panicking relational adapter must not take down the fan-out
	c.Process(context.Background(), classify.KindDeviceStatus, env, transform.ProductionDefaults)

	require.Len(t, doc.docs, 1, "document write runs before the panicking relational write")
}

func TestProcess_Unclassified(t *testing.T) {
	doc := &fakeDocument{}
	c := New(&fakeRelational{}, doc, nil, nil, slog.Default())

	env := newEnv("test.topic", `{"mystery":"data"}`)
	c.Process(context.Background(), classify.KindUnclassified, env, transform.CatchAllDefaults)

	require.Len(t, doc.docs, 1)
	assert.Equal(t, "test", doc.docs[0].SensorType)
	assert.Equal(t, "test_device", doc.docs[0].DeviceID)
}

func TestProcess_GraphSink(t *testing.T) {
	g := &fakeGraph{}
	c := New(&fakeRelational{}, &fakeDocument{}, g, nil, slog.Default())

	env := newEnv("sensors.temperature", `{"device_id":"s1","temperature":21.0,"location":"room_b"}`)
	c.Process(context.Background(), classify.KindTemperature, env, transform.ProductionDefaults)

	require.Len(t, g.devices, 1)
	assert.Equal(t, "room_b", g.locations["s1"])
	require.Len(t, g.readings, 1)
	assert.Equal(t, "temperature", g.readings[0].SensorType)
}

func TestProcess_TrackerTouched(t *testing.T) {
	tr := &fakeTracker{}
	c := New(&fakeRelational{}, &fakeDocument{}, nil, tr, slog.Default())

	env := newEnv("sensors.air_quality", `{"device_id":"aq1","co2":400}`)
	c.Process(context.Background(), classify.KindAirQuality, env, transform.ProductionDefaults)

	assert.Equal(t, []string{"aq1"}, tr.touched)
}
