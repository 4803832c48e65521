// Package envelope builds the engine's internal representation of one
// inbound transport message: the originating topic, the receipt time and
// the decoded payload fields.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawDataField is the field key used when a payload cannot be decoded as
// a JSON object. The payload text is preserved verbatim under this key.
const RawDataField = "raw_data"

// Envelope is the unit the routing engine operates on. It is created once
// per inbound message and never mutated afterwards.
type Envelope struct {
	// ID identifies the envelope in logs. It is never persisted.
	ID string

	// Topic is the transport subject the message arrived on.
	Topic string

	// ReceivedAt is set by the engine on arrival.
	ReceivedAt time.Time

	// Fields holds the parsed JSON object, or a single raw_data entry
	// when the payload was not a JSON object. Never nil.
	Fields map[string]any
}

// Decode builds an Envelope from a raw transport payload. A payload that
// is not a JSON object degrades to a raw-text wrapper; decode failure is
// not an error.
func Decode(topic string, payload []byte, receivedAt time.Time) *Envelope {
	env := &Envelope{
		ID:         uuid.New().String(),
		Topic:      topic,
		ReceivedAt: receivedAt,
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil && fields != nil {
		env.Fields = fields
	} else {
		env.Fields = map[string]any{RawDataField: string(payload)}
	}
	return env
}

// IsRaw reports whether the payload degraded to a raw-text wrapper.
func (e *Envelope) IsRaw() bool {
	_, ok := e.Fields[RawDataField]
	return ok && len(e.Fields) == 1
}

// Has reports whether a field is present, regardless of its value.
func (e *Envelope) Has(key string) bool {
	_, ok := e.Fields[key]
	return ok
}

// String returns the field as a string, or ok=false when absent or not a
// string. Absent values are never coerced to "".
func (e *Envelope) String(key string) (string, bool) {
	v, ok := e.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the field as a float64. JSON numbers decode to float64,
// so this covers every numeric payload value.
func (e *Envelope) Float(key string) (float64, bool) {
	v, ok := e.Fields[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// StringOr returns the field as a string, falling back to def when the
// field is absent or not a string.
func (e *Envelope) StringOr(key, def string) string {
	if s, ok := e.String(key); ok {
		return s
	}
	return def
}

// FloatPtr returns a pointer to the field's numeric value, or nil when
// absent. Transformers use this so omitted readings stay omitted instead
// of becoming zero in a destination schema.
func (e *Envelope) FloatPtr(key string) *float64 {
	if f, ok := e.Float(key); ok {
		return &f
	}
	return nil
}

// Timestamp resolves the reading timestamp: an RFC 3339 "timestamp"
// payload field wins, otherwise the receipt time.
func (e *Envelope) Timestamp() time.Time {
	if s, ok := e.String("timestamp"); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t
		}
	}
	return e.ReceivedAt
}
