// Package influxdb records TV property history in InfluxDB.
//
// Every property change the bridge announces is also written as a point in
// the tv_property measurement, tagged by device and property name. Writes
// are batched and never block the caller.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
package influxdb
