// Package seeder publishes synthetic sensor traffic for demos and load
// checks. Payload shapes mirror what real field devices send, including
// the occasional non-JSON payload on the test topic.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging"
)

// Config controls the seeding run.
type Config struct {
	// Topics to publish to. Empty means all production topics plus the
	// test topic.
	Topics []string

	// Count is the total number of messages to publish.
	Count int

	// Interval is the pause between messages. Zero publishes as fast as
	// the transport accepts.
	Interval time.Duration

	// DeviceCount bounds the synthetic device-id pool.
	DeviceCount int
}

// DefaultConfig returns a small smoke-test run.
func DefaultConfig() Config {
	return Config{
		Count:       100,
		Interval:    50 * time.Millisecond,
		DeviceCount: 10,
	}
}

// Runner generates and publishes synthetic messages.
type Runner struct {
	cfg       Config
	publisher messaging.Publisher
	logger    *slog.Logger

	devices   []string
	locations []string
}

// NewRunner creates a Runner. The publisher is borrowed, not owned.
func NewRunner(cfg Config, publisher messaging.Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.DeviceCount < 1 {
		cfg.DeviceCount = 1
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = append(messaging.ProductionTopics(), messaging.TopicTest)
	}

	devices := make([]string, cfg.DeviceCount)
	for i := range devices {
		devices[i] = fmt.Sprintf("sensor_%03d", i+1)
	}

	return &Runner{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		devices:   devices,
		locations: []string{"warehouse_a", "warehouse_b", "loading_dock", "server_room", "office_2f"},
	}
}

// Run publishes cfg.Count messages across the configured topics.
func (r *Runner) Run(ctx context.Context) error {
	gofakeit.Seed(time.Now().UnixNano())

	r.logger.Info("starting seeder",
		"count", r.cfg.Count,
		"topics", r.cfg.Topics,
		"devices", len(r.devices),
		"interval", r.cfg.Interval)

	published := 0
	for i := 0; i < r.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			r.logger.Info("seeder interrupted", "published", published)
			return err
		}

		topic := r.cfg.Topics[i%len(r.cfg.Topics)]
		payload := r.Payload(topic)

		if err := r.publisher.Publish(ctx, topic, payload); err != nil {
			return fmt.Errorf("publish to %s after %d messages: %w", topic, published, err)
		}
		published++

		if r.cfg.Interval > 0 {
			select {
			case <-time.After(r.cfg.Interval):
			case <-ctx.Done():
				r.logger.Info("seeder interrupted", "published", published)
				return ctx.Err()
			}
		}
	}

	r.logger.Info("seeder finished", "published", published)
	return nil
}

// Payload generates one topic-appropriate payload.
func (r *Runner) Payload(topic string) []byte {
	switch topic {
	case messaging.TopicTemperature, messaging.TopicHumidity:
		return r.environmentalPayload()
	case messaging.TopicAirQuality:
		return r.airQualityPayload()
	case messaging.TopicDeviceStatus, messaging.TopicDeviceHealth:
		return r.statusPayload()
	default:
		return r.testPayload()
	}
}

func (r *Runner) device() string {
	return r.devices[rand.Intn(len(r.devices))]
}

func (r *Runner) location() string {
	return r.locations[rand.Intn(len(r.locations))]
}

func (r *Runner) environmentalPayload() []byte {
	payload := map[string]any{
		"device_id":   r.device(),
		"location":    r.location(),
		"temperature": round1(gofakeit.Float64Range(15, 32)),
		"humidity":    round1(gofakeit.Float64Range(25, 75)),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	// Some devices report only one of the two values.
	switch rand.Intn(5) {
	case 0:
		delete(payload, "humidity")
	case 1:
		delete(payload, "temperature")
	}
	return mustJSON(payload)
}

func (r *Runner) airQualityPayload() []byte {
	payload := map[string]any{
		"device_id": r.device(),
		"location":  r.location(),
		"pm2_5":     round1(gofakeit.Float64Range(2, 80)),
		"pm10":      round1(gofakeit.Float64Range(5, 120)),
		"co2":       round1(gofakeit.Float64Range(380, 1400)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if rand.Intn(3) == 0 {
		payload["aqi"] = float64(gofakeit.Number(10, 180))
	}
	return mustJSON(payload)
}

func (r *Runner) statusPayload() []byte {
	payload := map[string]any{
		"device_id": r.device(),
		"status":    gofakeit.RandomString([]string{"online", "offline", "maintenance", "degraded"}),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	// Battery-powered devices also report charge level.
	if rand.Intn(2) == 0 {
		payload["battery_level"] = float64(gofakeit.Number(1, 100))
	}
	return mustJSON(payload)
}

// testPayload produces the mixed traffic a shared test topic sees:
// well-formed readings, unclassifiable objects, and plain text.
func (r *Runner) testPayload() []byte {
	switch rand.Intn(4) {
	case 0:
		return r.environmentalPayload()
	case 1:
		return r.airQualityPayload()
	case 2:
		return mustJSON(map[string]any{
			"message": gofakeit.HackerPhrase(),
			"count":   gofakeit.Number(1, 100),
		})
	default:
		return []byte(gofakeit.Sentence(6))
	}
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}

func mustJSON(v map[string]any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
