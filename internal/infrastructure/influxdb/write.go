package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors a sensor reading to InfluxDB.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Field keys are the sensor channel names (smoke, gas_raw, co2, etc.).
func (c *Client) WriteReading(deviceID string, fields map[string]float64, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	pointFields := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		pointFields[k] = v
	}

	point := write.NewPoint(
		"readings",
		map[string]string{
			"device_id": deviceID,
		},
		pointFields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlert records an emitted alert as a time-series event.
func (c *Client) WriteAlert(deviceID string, channel string, label string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alerts",
		map[string]string{
			"device_id": deviceID,
			"channel":   channel,
			"label":     label,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
