// Package postgres implements the relational store contract on
// PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
)

type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository and verifies connectivity.
func New(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() { r.pool.Close() }

// InsertEnvironmentalReading inserts one row into environmental_data.
func (r *Repository) InsertEnvironmentalReading(ctx context.Context, rec *store.EnvironmentalReading) error {
	q := `INSERT INTO environmental_data
	        (device_id, recorded_at, temperature, humidity, pm2_5, pm10, co2, location, metadata)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	var metadata []byte
	if rec.Metadata != nil {
		var err error
		metadata, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, q,
		rec.DeviceID, rec.RecordedAt, rec.Temperature, rec.Humidity,
		rec.PM25, rec.PM10, rec.CO2, rec.Location, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert environmental reading: %w", err)
	}
	return nil
}

// InsertSensorReading inserts one row into sensor_readings. Value is
// stored as text so both numeric battery levels and status strings
// survive.
func (r *Repository) InsertSensorReading(ctx context.Context, rec *store.SensorReading) error {
	q := `INSERT INTO sensor_readings
	        (device_id, sensor_type, timestamp, value, unit, location, topic, raw_data)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := r.pool.Exec(ctx, q,
		rec.DeviceID, rec.SensorType, rec.Timestamp, fmt.Sprint(rec.Value),
		rec.Unit, rec.Location, rec.Topic, rec.RawData,
	)
	if err != nil {
		return fmt.Errorf("insert sensor reading: %w", err)
	}
	return nil
}

// RecentEnvironmental returns the most recent environmental rows, newest
// first. Used by the verify command.
func (r *Repository) RecentEnvironmental(ctx context.Context, limit int) ([]store.EnvironmentalReading, error) {
	q := `SELECT device_id, recorded_at, temperature, humidity, pm2_5, pm10, co2, location, metadata
	      FROM environmental_data
	      ORDER BY recorded_at DESC
	      LIMIT $1`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent environmental: %w", err)
	}
	defer rows.Close()

	return scanEnvironmental(rows)
}

// DeviceReadings returns the most recent environmental rows for one
// device, newest first.
func (r *Repository) DeviceReadings(ctx context.Context, deviceID string, limit int) ([]store.EnvironmentalReading, error) {
	q := `SELECT device_id, recorded_at, temperature, humidity, pm2_5, pm10, co2, location, metadata
	      FROM environmental_data
	      WHERE device_id = $1
	      ORDER BY recorded_at DESC
	      LIMIT $2`

	rows, err := r.pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("device readings: %w", err)
	}
	defer rows.Close()

	return scanEnvironmental(rows)
}

// RecentSensorReadings returns the most recent sensor_readings rows,
// newest first.
func (r *Repository) RecentSensorReadings(ctx context.Context, limit int) ([]store.SensorReading, error) {
	q := `SELECT device_id, sensor_type, timestamp, value, unit, location, topic, raw_data
	      FROM sensor_readings
	      ORDER BY timestamp DESC
	      LIMIT $1`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sensor readings: %w", err)
	}
	defer rows.Close()

	var out []store.SensorReading
	for rows.Next() {
		var rec store.SensorReading
		var value *string
		var unit, location, topic *string
		var ts time.Time
		if err := rows.Scan(&rec.DeviceID, &rec.SensorType, &ts, &value, &unit, &location, &topic, &rec.RawData); err != nil {
			return nil, fmt.Errorf("scan sensor reading: %w", err)
		}
		rec.Timestamp = ts
		if value != nil {
			rec.Value = *value
		}
		if unit != nil {
			rec.Unit = *unit
		}
		if location != nil {
			rec.Location = *location
		}
		if topic != nil {
			rec.Topic = *topic
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEnvironmental(rows pgxRows) ([]store.EnvironmentalReading, error) {
	var out []store.EnvironmentalReading
	for rows.Next() {
		var rec store.EnvironmentalReading
		var location *string
		var metadata []byte
		if err := rows.Scan(&rec.DeviceID, &rec.RecordedAt, &rec.Temperature, &rec.Humidity,
			&rec.PM25, &rec.PM10, &rec.CO2, &location, &metadata); err != nil {
			return nil, fmt.Errorf("scan environmental reading: %w", err)
		}
		if location != nil {
			rec.Location = *location
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &rec.Metadata)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
