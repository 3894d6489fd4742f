// Package mqtt publishes the brewhouse event feed to an MQTT broker:
// session lifecycle transitions, telemetry samples and device status.
//
// The feed is optional; when disabled in config the core runs without a
// broker and nothing subscribes back. Connection management, LWT and
// reconnection are handled by paho.mqtt.golang.
package mqtt
