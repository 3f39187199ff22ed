package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// boolToFloat converts an on/off state to a plottable field value.
func boolToFloat(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

// WriteActuatorState records an actuator switching on or off.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - kind: "relay" or "light"
//   - id: Numeric actuator ID
//   - name: Human-readable actuator name (e.g., "hallway")
//   - on: Whether the actuator is now energized
//   - source: What caused the change (e.g., "pir", "switch", "api", "expiry")
//
// Example:
//
//	client.WriteActuatorState("relay", 3, "hallway", true, "pir")
func (c *Client) WriteActuatorState(kind string, id int, name string, on bool, source string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"actuator_state",
		map[string]string{
			"kind":   kind,
			"id":     strconv.Itoa(id),
			"name":   name,
			"source": source,
		},
		map[string]interface{}{
			"on": boolToFloat(on),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCycleStats records engine loop progress for stall monitoring.
//
// Parameters:
//   - cycles: Total cycles completed since start
//   - eventsDropped: Persistence events dropped due to a full queue
func (c *Client) WriteCycleStats(cycles uint64, eventsDropped uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"engine_cycle",
		map[string]string{},
		map[string]interface{}{
			"cycles":         float64(cycles),
			"events_dropped": float64(eventsDropped),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
