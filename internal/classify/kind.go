// Package classify assigns a message kind to envelopes arriving on the
// catch-all topic, where the topic name itself says nothing about the
// payload.
package classify

import "github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"

// Kind is the classification that decides which schema transforms and
// store writes apply to an envelope.
type Kind string

const (
	KindTemperature  Kind = "temperature"
	KindAirQuality   Kind = "air_quality"
	KindDeviceStatus Kind = "device_status"
	KindUnclassified Kind = "unclassified"
)

// airQualityFields are the pollutant fields that mark an envelope as an
// air-quality message when no environmental fields are present.
var airQualityFields = []string{"pm2_5", "pm10", "co2", "aqi"}

// Classify inspects field presence to decide what a catch-all message is.
// The rule is order-sensitive: environmental fields win over pollutant
// fields. Device-status messages are never detected here; they must
// arrive on their dedicated topics.
func Classify(env *envelope.Envelope) Kind {
	if env.Has("temperature") || env.Has("humidity") {
		return KindTemperature
	}
	for _, f := range airQualityFields {
		if env.Has(f) {
			return KindAirQuality
		}
	}
	return KindUnclassified
}
