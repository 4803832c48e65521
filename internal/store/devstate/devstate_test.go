package devstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestTracker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Tracker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := NewWithClient(client, ttl)
	t.Cleanup(func() { tracker.Close() })
	return mr, tracker
}

func TestTracker_TouchAndList(t *testing.T) {
	_, tracker := setupTestTracker(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Touch(ctx, "sensor-1", base, map[string]float64{"temperature": 21.5}))
	require.NoError(t, tracker.Touch(ctx, "sensor-2", base.Add(time.Minute), map[string]float64{"pm2_5": 12}))

	devices, err := tracker.Devices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	// Most recently seen first.
	assert.Equal(t, "sensor-2", devices[0].DeviceID)
	assert.Equal(t, "sensor-1", devices[1].DeviceID)
	assert.Equal(t, 12.0, devices[0].Values["pm2_5"])
	assert.Equal(t, 21.5, devices[1].Values["temperature"])
	assert.True(t, devices[1].LastSeen.Equal(base))
}

func TestTracker_TouchUpdatesExisting(t *testing.T) {
	_, tracker := setupTestTracker(t, 0)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Touch(ctx, "sensor-1", base, map[string]float64{"temperature": 20}))
	require.NoError(t, tracker.Touch(ctx, "sensor-1", base.Add(time.Hour), map[string]float64{"humidity": 55}))

	devices, err := tracker.Devices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	// Hash fields accumulate; last_seen moves forward.
	assert.Equal(t, 20.0, devices[0].Values["temperature"])
	assert.Equal(t, 55.0, devices[0].Values["humidity"])
	assert.True(t, devices[0].LastSeen.Equal(base.Add(time.Hour)))
}

func TestTracker_EmptyDeviceIDIgnored(t *testing.T) {
	_, tracker := setupTestTracker(t, 0)
	ctx := context.Background()

	require.NoError(t, tracker.Touch(ctx, "", time.Now(), nil))

	devices, err := tracker.Devices(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestTracker_ExpiredDevicePruned(t *testing.T) {
	mr, tracker := setupTestTracker(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, tracker.Touch(ctx, "sensor-1", time.Now(), map[string]float64{"co2": 400}))

	// Fast forward past the TTL; the hash expires but the sorted-set
	// entry remains until the next listing prunes it.
	mr.FastForward(2 * time.Minute)

	devices, err := tracker.Devices(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, devices)

	devices, err = tracker.Devices(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestTracker_LimitRespected(t *testing.T) {
	_, tracker := setupTestTracker(t, 0)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tracker.Touch(ctx, id, base.Add(time.Duration(i)*time.Second), nil))
	}

	devices, err := tracker.Devices(ctx, 2)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "d", devices[0].DeviceID)
	assert.Equal(t, "c", devices[1].DeviceID)
}
