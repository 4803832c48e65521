package engine

import (
	"context"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/classify"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/router"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/transform"
)

// Processor is the fan-out entry point the topic handlers feed into.
type Processor interface {
	Process(ctx context.Context, kind classify.Kind, env *envelope.Envelope, d transform.Defaults)
}

// fixedKindHandler serves the dedicated sensor topics, where the topic
// name alone decides the message kind.
type fixedKindHandler struct {
	kind      classify.Kind
	defaults  transform.Defaults
	processor Processor
}

func (h *fixedKindHandler) Handle(ctx context.Context, env *envelope.Envelope) {
	h.processor.Process(ctx, h.kind, env, h.defaults)
}

// NewEnvironmentalHandler handles the temperature and humidity topics.
func NewEnvironmentalHandler(p Processor, d transform.Defaults) router.Handler {
	return &fixedKindHandler{kind: classify.KindTemperature, defaults: d, processor: p}
}

// NewAirQualityHandler handles the air-quality topic.
func NewAirQualityHandler(p Processor, d transform.Defaults) router.Handler {
	return &fixedKindHandler{kind: classify.KindAirQuality, defaults: d, processor: p}
}

// NewDeviceStatusHandler handles the device status and health topics.
func NewDeviceStatusHandler(p Processor, d transform.Defaults) router.Handler {
	return &fixedKindHandler{kind: classify.KindDeviceStatus, defaults: d, processor: p}
}

// catchAllHandler serves the test topic, where payload shape decides the
// kind. Catch-all messages use test defaults for missing identity fields
// and can never classify as device status.
type catchAllHandler struct {
	processor Processor
}

func (h *catchAllHandler) Handle(ctx context.Context, env *envelope.Envelope) {
	h.processor.Process(ctx, classify.Classify(env), env, transform.CatchAllDefaults)
}

// NewCatchAllHandler handles the catch-all test topic.
func NewCatchAllHandler(p Processor) router.Handler {
	return &catchAllHandler{processor: p}
}
