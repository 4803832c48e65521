// Package fanout issues independent writes to the persistence backends
// for one envelope. Writes are non-transactional: a failure in one store
// never prevents or rolls back writes to the others, and a partially
// written envelope is an accepted, permanent outcome.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/classify"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/metrics"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/transform"
)

// DeviceTracker receives a best-effort notification after each processed
// envelope. Failures are logged and ignored.
type DeviceTracker interface {
	Touch(ctx context.Context, deviceID string, seenAt time.Time, values map[string]float64) error
}

// Coordinator resolves the store writes applicable to a message kind and
// invokes each one independently.
type Coordinator struct {
	relational store.Relational
	document   store.Document
	graph      store.Graph // nil when the graph sink is disabled
	tracker    DeviceTracker
	logger     *slog.Logger
}

// New creates a Coordinator. graph and tracker may be nil.
func New(relational store.Relational, document store.Document, graph store.Graph, tracker DeviceTracker, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		relational: relational,
		document:   document,
		graph:      graph,
		tracker:    tracker,
		logger:     logger,
	}
}

// Process runs the schema transformers for kind and writes each resulting
// record to its store. A transformer that yields no record skips that
// store silently. Store failures are logged with the store name and
// device id and never abort sibling writes; there is no retry and no
// compensating action.
func (c *Coordinator) Process(ctx context.Context, kind classify.Kind, env *envelope.Envelope, d transform.Defaults) {
	metrics.ClassifiedTotal.WithLabelValues(string(kind)).Inc()

	switch kind {
	case classify.KindTemperature:
		if r, ok := transform.EnvironmentalReading(env, d); ok {
			c.write(ctx, "postgres", r.DeviceID, func() error {
				return c.relational.InsertEnvironmentalReading(ctx, r)
			})
		}
		if c.graph != nil {
			c.writeGraph(ctx, transform.EnvironmentalGraph(env, d))
		}

	case classify.KindAirQuality:
		doc := transform.AirQualityDocument(env, d)
		c.write(ctx, "document", doc.DeviceID, func() error {
			_, err := c.document.InsertSensorDocument(ctx, doc)
			return err
		})

	case classify.KindDeviceStatus:
		doc := transform.DeviceStatusDocument(env, d)
		c.write(ctx, "document", doc.DeviceID, func() error {
			_, err := c.document.InsertSensorDocument(ctx, doc)
			return err
		})
		if r, ok := transform.DeviceStatusReading(env, d); ok {
			c.write(ctx, "postgres", r.DeviceID, func() error {
				return c.relational.InsertSensorReading(ctx, r)
			})
		}
		if c.graph != nil {
			c.writeGraph(ctx, transform.DeviceStatusGraph(env, d))
		}

	case classify.KindUnclassified:
		doc := transform.UnclassifiedDocument(env, d)
		c.write(ctx, "document", doc.DeviceID, func() error {
			_, err := c.document.InsertSensorDocument(ctx, doc)
			return err
		})
	}

	c.touch(ctx, env, d)
}

// write invokes one store operation, isolating failures and panics so
// sibling writes for the same envelope still run.
func (c *Coordinator) write(ctx context.Context, storeName, deviceID string, op func() error) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return op()
	}()
	metrics.StoreWriteDuration.WithLabelValues(storeName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StoreWrites.WithLabelValues(storeName, "error").Inc()
		c.logger.Error("store write failed",
			"store", storeName, "device_id", deviceID, "error", err)
		return
	}
	metrics.StoreWrites.WithLabelValues(storeName, "ok").Inc()
	c.logger.Debug("store write ok", "store", storeName, "device_id", deviceID)
}

// writeGraph applies one graph update as three independent operations so
// a failing reading does not lose the device upsert.
func (c *Coordinator) writeGraph(ctx context.Context, u *transform.GraphUpdate) {
	deviceID := u.Device.DeviceID
	c.write(ctx, "graph", deviceID, func() error {
		_, err := c.graph.UpsertDeviceNode(ctx, u.Device)
		return err
	})
	if u.Location != "" {
		c.write(ctx, "graph", deviceID, func() error {
			return c.graph.LinkDeviceToLocation(ctx, deviceID, u.Location)
		})
	}
	for _, r := range u.Readings {
		reading := r
		c.write(ctx, "graph", deviceID, func() error {
			return c.graph.RecordReading(ctx, &reading)
		})
	}
}

// trackedFields are the measured values mirrored into the device tracker.
var trackedFields = []string{"temperature", "humidity", "pm2_5", "pm10", "co2"}

func (c *Coordinator) touch(ctx context.Context, env *envelope.Envelope, d transform.Defaults) {
	if c.tracker == nil {
		return
	}
	values := make(map[string]float64)
	for _, f := range trackedFields {
		if v, ok := env.Float(f); ok {
			values[f] = v
		}
	}
	deviceID := env.StringOr("device_id", d.DeviceID)
	if err := c.tracker.Touch(ctx, deviceID, env.ReceivedAt, values); err != nil {
		c.logger.Warn("device tracker update failed", "device_id", deviceID, "error", err)
	}
}
