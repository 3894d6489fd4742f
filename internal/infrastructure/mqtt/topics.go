package mqtt

import "fmt"

// Topic layout for the brewhouse event feed.
//
// Everything lives under a single brewhouse/ prefix:
//
//	brewhouse/session/{id}/state        session transitions
//	brewhouse/telemetry/{kind}/{id}     telemetry samples per series
//	brewhouse/device/{serial}/status    device state and error reports
//	brewhouse/system/status             core online/offline (retained, LWT)
const (
	// TopicPrefix is the base for all brewhouse topics.
	TopicPrefix = "brewhouse"

	// TopicSystemStatus carries the core's online/offline status.
	TopicSystemStatus = TopicPrefix + "/system/status"
)

// Topics provides builders for brewhouse MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
type Topics struct{}

// SessionState returns the topic for a session's lifecycle transitions.
func (Topics) SessionState(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/state", TopicPrefix, sessionID)
}

// Telemetry returns the topic for a session's telemetry series.
func (Topics) Telemetry(kind, sessionID string) string {
	return fmt.Sprintf("%s/telemetry/%s/%s", TopicPrefix, kind, sessionID)
}

// DeviceStatus returns the topic for a device's state and error reports.
func (Topics) DeviceStatus(serial string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, serial)
}
