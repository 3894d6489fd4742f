package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBrewingSample mirrors one brewer telemetry datapoint.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Temperatures are Celsius, matching the stored samples.
func (c *Client) WriteBrewingSample(sessionID string, step string, wortC, thermoblockC float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"brewing",
		map[string]string{
			"session_id": sessionID,
			"step":       step,
		},
		map[string]interface{}{
			"wort_c":        wortC,
			"thermoblock_c": thermoblockC,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteFermentationSample mirrors one fermenter datapoint.
// Temperature is Celsius, pressure is millibar.
func (c *Client) WriteFermentationSample(sessionID string, temperatureC, pressureMbar, voltage float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fermentation",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"temperature_c": temperatureC,
			"pressure_mbar": pressureMbar,
			"voltage":       voltage,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionTransition records a lifecycle transition as an annotation
// stream, so dashboards can overlay phase changes on the telemetry.
func (c *Client) WriteSessionTransition(sessionID, event, from, to string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_transitions",
		map[string]string{
			"session_id": sessionID,
			"event":      event,
		},
		map[string]interface{}{
			"from": from,
			"to":   to,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

// Flush forces any batched points out immediately. Mostly useful in
// shutdown paths and tests.
func (c *Client) Flush() {
	if c.writeAPI != nil {
		c.writeAPI.Flush()
	}
}
