package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PropertyMeasurement is the measurement holding TV property history.
const PropertyMeasurement = "tv_property"

// WriteProperty records one property value change. The write is
// non-blocking; points are batched and sent asynchronously.
//
// Values are stored under a field named after their kind (bool, int,
// float, string) so the field type never changes within a series.
//
// Example:
//
//	client.WriteProperty("webos-aabbccddeeff", "volume", 12, time.Now())
func (c *Client) WriteProperty(deviceID, property string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		PropertyMeasurement,
		map[string]string{
			"device_id": deviceID,
			"property":  property,
		},
		propertyFields(value),
		at,
	)
	c.writeAPI.WritePoint(point)
}

func propertyFields(value any) map[string]any {
	switch v := value.(type) {
	case bool:
		return map[string]any{"bool": v}
	case int:
		return map[string]any{"int": int64(v)}
	case int64:
		return map[string]any{"int": v}
	case float64:
		return map[string]any{"float": v}
	case string:
		return map[string]any{"string": v}
	default:
		return map[string]any{"string": fmt.Sprint(v)}
	}
}
