// Package devstate keeps a live view of device activity in Redis. Each
// processed message refreshes the device's hash and its rank in a
// last-seen sorted set, so operators can list active devices without
// touching the persistent stores.
package devstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	deviceKeyPrefix = "device:"
	lastSeenSet     = "devices:last_seen"
)

// DeviceState is one device's cached activity snapshot.
type DeviceState struct {
	DeviceID string
	LastSeen time.Time
	Values   map[string]float64
}

// Tracker stores per-device activity in Redis.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection. ttl bounds how
// long an idle device's state is retained; zero disables expiry.
func New(redisURL string, ttl time.Duration) (*Tracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Tracker{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Tracker {
	return &Tracker{client: client, ttl: ttl}
}

// Touch refreshes the device's state hash and last-seen rank.
func (t *Tracker) Touch(ctx context.Context, deviceID string, seenAt time.Time, values map[string]float64) error {
	if deviceID == "" {
		return nil
	}

	key := deviceKeyPrefix + deviceID
	fields := map[string]any{
		"last_seen": seenAt.UTC().Format(time.RFC3339Nano),
	}
	for name, v := range values {
		fields[name] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	if t.ttl > 0 {
		pipe.Expire(ctx, key, t.ttl)
	}
	pipe.ZAdd(ctx, lastSeenSet, redis.Z{
		Score:  float64(seenAt.UnixMilli()),
		Member: deviceID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch device %s: %w", deviceID, err)
	}
	return nil
}

// Devices returns up to limit devices ordered most recently seen first.
// Devices whose hash has expired are pruned from the set as they are
// encountered.
func (t *Tracker) Devices(ctx context.Context, limit int) ([]DeviceState, error) {
	ids, err := t.client.ZRevRange(ctx, lastSeenSet, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	states := make([]DeviceState, 0, len(ids))
	for _, id := range ids {
		fields, err := t.client.HGetAll(ctx, deviceKeyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("read device %s: %w", id, err)
		}
		if len(fields) == 0 {
			t.client.ZRem(ctx, lastSeenSet, id)
			continue
		}

		state := DeviceState{DeviceID: id, Values: make(map[string]float64)}
		for name, raw := range fields {
			if name == "last_seen" {
				if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
					state.LastSeen = ts
				}
				continue
			}
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				state.Values[name] = v
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// Close releases the underlying connection.
func (t *Tracker) Close() error {
	return t.client.Close()
}
