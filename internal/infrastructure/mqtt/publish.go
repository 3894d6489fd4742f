package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// Telemetry payloads are tiny; this guards against a runaway marshaller.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "brewhouse/session/abc/state")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained messages suit state topics (device status, system status);
// transitions and telemetry go out unretained.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON publishes a payload with the configured default QoS,
// unretained. This is the usual entry point for event fan-out.
func (c *Client) PublishJSON(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), false)
}

// PublishRetained publishes a retained message with the configured
// default QoS. Use for state topics where new subscribers should
// immediately receive the current value.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func (c *Client) publishOnlineStatus() error {
	payload := fmt.Sprintf(`{"client_id":%q,"status":"online"}`, c.cfg.Broker.ClientID)
	return c.Publish(TopicSystemStatus, []byte(payload), 1, true)
}

func (c *Client) publishOfflineStatus() error {
	payload := fmt.Sprintf(`{"client_id":%q,"status":"offline"}`, c.cfg.Broker.ClientID)
	return c.Publish(TopicSystemStatus, []byte(payload), 1, true)
}
