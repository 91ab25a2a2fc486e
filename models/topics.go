package models

import "fmt"

// TopicKind is the closed set of channels the agent knows about.
type TopicKind int

const (
	TopicTelemetry TopicKind = iota
	TopicStatus
	TopicCommands
	TopicOTA
	TopicRegistration
)

// topic suffixes under devices/<id>/.
var topicSuffixes = map[TopicKind]string{
	TopicTelemetry: "telemetry",
	TopicStatus:    "status",
	TopicCommands:  "commands",
	TopicOTA:       "ota",
}

// RegistrationTopic is shared across all devices.
const RegistrationTopic = "devices/registration"

// Topic renders the broker topic string for this device.
func Topic(kind TopicKind, deviceID string) string {
	if kind == TopicRegistration {
		return RegistrationTopic
	}
	return fmt.Sprintf("devices/%s/%s", deviceID, topicSuffixes[kind])
}

// KindOf maps a received topic string back onto the closed enumeration.
// The bool is false for topics the device does not know.
func KindOf(topic, deviceID string) (TopicKind, bool) {
	if topic == RegistrationTopic {
		return TopicRegistration, true
	}
	for kind, suffix := range topicSuffixes {
		if topic == fmt.Sprintf("devices/%s/%s", deviceID, suffix) {
			return kind, true
		}
	}
	return 0, false
}
