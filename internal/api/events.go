package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/influxdb"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/logging"
	"github.com/picobrewhouse/brewhouse-core/internal/infrastructure/mqtt"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
	"github.com/picobrewhouse/brewhouse-core/internal/timeseries"
)

// EventPublisher fans committed state changes and telemetry out to every
// configured consumer: the WebSocket hub, the MQTT broker and InfluxDB.
// MQTT and InfluxDB are optional; a nil client simply skips that leg.
//
// It implements session.EventSink. Sink callbacks must not block, so
// MQTT publishes (which wait for broker acknowledgement) run on their
// own goroutines; InfluxDB writes are batched and non-blocking already.
type EventPublisher struct {
	hub    *Hub
	mqtt   *mqtt.Client
	influx *influxdb.Client
	topics mqtt.Topics
	logger *logging.Logger
}

// NewEventPublisher creates a publisher over the given consumers.
// hub is required; mqttClient and influxClient may be nil.
func NewEventPublisher(hub *Hub, mqttClient *mqtt.Client, influxClient *influxdb.Client, logger *logging.Logger) *EventPublisher {
	return &EventPublisher{
		hub:    hub,
		mqtt:   mqttClient,
		influx: influxClient,
		logger: logger,
	}
}

// sessionEventPayload is the wire form of a session transition.
type sessionEventPayload struct {
	SessionID     string `json:"session_id"`
	DeviceID      string `json:"device_id"`
	Event         string `json:"event"`
	PreviousState string `json:"previous_state"`
	NewState      string `json:"new_state"`
	Timestamp     string `json:"timestamp"`
}

// telemetryEventPayload is the wire form of an ingested sample.
type telemetryEventPayload struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Sample    any    `json:"sample"`
}

// deviceStatusPayload is the wire form of a device status report.
type deviceStatusPayload struct {
	DeviceID     string `json:"device_id"`
	SerialNumber string `json:"serial_number"`
	Kind         string `json:"kind"`
	State        string `json:"state"`
	Firmware     string `json:"firmware"`
	Errors       int    `json:"errors"`
	Timestamp    string `json:"timestamp"`
}

// SessionTransitioned broadcasts an accepted session transition.
func (p *EventPublisher) SessionTransitioned(_ context.Context, s *session.Session, event session.Event, previous session.Status) {
	payload := sessionEventPayload{
		SessionID:     s.ID,
		DeviceID:      s.DeviceID,
		Event:         string(event),
		PreviousState: string(previous),
		NewState:      string(s.Status),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	p.hub.Broadcast(WSChannelSessions, payload)
	p.publishMQTT(p.topics.SessionState(s.ID), payload)

	if p.influx != nil {
		p.influx.WriteSessionTransition(s.ID, string(event), string(previous), string(s.Status), time.Now().UTC())
	}
}

// TelemetryAppended broadcasts a stored telemetry sample.
func (p *EventPublisher) TelemetryAppended(_ context.Context, sessionID string, kind timeseries.Kind, sample timeseries.Sample) {
	payload := telemetryEventPayload{
		SessionID: sessionID,
		Kind:      string(kind),
		Sample:    sample,
	}

	p.hub.Broadcast(WSChannelTelemetry, payload)
	p.publishMQTT(p.topics.Telemetry(string(kind), sessionID), payload)

	if p.influx != nil {
		switch v := sample.(type) {
		case timeseries.BrewingSample:
			p.influx.WriteBrewingSample(sessionID, v.Step, v.WortTemperature, v.ThermoblockTemperature, v.SampleTime())
		case timeseries.FermentationSample:
			p.influx.WriteFermentationSample(sessionID, v.Temperature, v.Pressure, v.Voltage, v.SampleTime())
		}
	}
}

// DeviceStatusChanged publishes a device's current status to the broker.
func (p *EventPublisher) DeviceStatusChanged(_ context.Context, d *device.Device) {
	payload := deviceStatusPayload{
		DeviceID:     d.ID,
		SerialNumber: d.SerialNumber,
		Kind:         string(d.Kind),
		State:        string(d.State),
		Firmware:     d.FirmwareVersion,
		Errors:       len(d.Errors),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	p.publishMQTT(p.topics.DeviceStatus(d.SerialNumber), payload)
}

// publishMQTT sends a payload to the broker without blocking the caller.
// Publish waits for broker acknowledgement, so it runs on its own goroutine.
func (p *EventPublisher) publishMQTT(topic string, payload any) {
	if p.mqtt == nil || !p.mqtt.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event payload", "topic", topic, "error", err)
		return
	}

	go func() {
		if err := p.mqtt.PublishJSON(topic, data); err != nil {
			p.logger.Warn("event publish failed", "topic", topic, "error", err)
		}
	}()
}

// publishDeviceStatus forwards a device status change to the event
// publisher, when one is wired.
func (s *Server) publishDeviceStatus(ctx context.Context, d *device.Device) {
	if s.events == nil || d == nil {
		return
	}
	s.events.DeviceStatusChanged(ctx, d)
}
