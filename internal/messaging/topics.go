package messaging

// Topic constants for the sensor message bus.
// Production topics carry a single message kind; the test topic is a
// catch-all whose payload shape decides the kind.
const (
	TopicTemperature  = "sensors.temperature"
	TopicHumidity     = "sensors.humidity"
	TopicAirQuality   = "sensors.air_quality"
	TopicDeviceStatus = "sensors.device.status"
	TopicDeviceHealth = "sensors.device.health"

	// TopicTest is the catch-all topic used by field tests and ad-hoc
	// publishers. Messages here are classified by payload shape.
	TopicTest = "test.topic"
)

// ProductionTopics lists every topic with a fixed message kind.
func ProductionTopics() []string {
	return []string{
		TopicTemperature,
		TopicHumidity,
		TopicAirQuality,
		TopicDeviceStatus,
		TopicDeviceHealth,
	}
}
