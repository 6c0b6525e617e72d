package mqtt

import (
	"fmt"
	"strings"
)

// Topic namespace for device traffic.
//
// Devices publish readings to devices/{id}/data and command responses to
// devices/{id}/res. The relay publishes commands to devices/{id}/cmd on
// behalf of interactive clients. The namespace is a fixed wire contract
// with device firmware; changing it is a breaking firmware change.
const (
	// TopicPrefixDevices is the base for all device topics.
	TopicPrefixDevices = "devices"

	// TopicPrefixRelay is the base for relay service topics.
	TopicPrefixRelay = "aerosense/relay"
)

// Topic suffixes for the per-device channels.
const (
	topicSuffixData     = "data"
	topicSuffixCommand  = "cmd"
	topicSuffixResponse = "res"
)

// Topics provides builders for AeroSense MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	dataTopic := topics.DeviceData("as-3f9c")
//	// Returns: "devices/as-3f9c/data"
type Topics struct{}

// DeviceData returns the topic a device publishes telemetry readings to.
//
// Example: devices/as-3f9c/data
func (Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, topicSuffixData)
}

// DeviceCommand returns the topic the relay publishes commands to.
//
// Example: devices/as-3f9c/cmd
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, topicSuffixCommand)
}

// DeviceResponse returns the topic a device publishes command responses to.
//
// Example: devices/as-3f9c/res
func (Topics) DeviceResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, topicSuffixResponse)
}

// RelayStatus returns the relay service status topic (online/offline, LWT).
//
// Example: aerosense/relay/status
func (Topics) RelayStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixRelay)
}

// AllDeviceData returns a pattern matching telemetry from every device.
//
// Pattern: devices/+/data
func (Topics) AllDeviceData() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, topicSuffixData)
}

// AllDeviceResponses returns a pattern matching command responses from every device.
//
// Pattern: devices/+/res
func (Topics) AllDeviceResponses() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, topicSuffixResponse)
}

// ParseDeviceTopic extracts the device ID and channel from a device topic.
//
// Returns ErrInvalidTopic for topics outside the devices/ namespace or with
// an unexpected shape. The channel is one of "data", "cmd" or "res".
func ParseDeviceTopic(topic string) (deviceID, channel string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevices {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	switch parts[2] {
	case topicSuffixData, topicSuffixCommand, topicSuffixResponse:
	default:
		return "", "", fmt.Errorf("%w: unknown channel in %q", ErrInvalidTopic, topic)
	}

	if parts[1] == "" {
		return "", "", fmt.Errorf("%w: empty device id in %q", ErrInvalidTopic, topic)
	}

	return parts[1], parts[2], nil
}
