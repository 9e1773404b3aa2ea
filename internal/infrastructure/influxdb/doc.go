// Package influxdb writes dispatch outcomes to InfluxDB v2 for long-term
// charting of blind usage.
//
// Writes use the non-blocking WriteAPI: points are batched and flushed in
// the background, and failures arrive through the WithErrorHandler callback
// instead of the caller.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, influxdb.WithErrorHandler(onErr))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Every outcome becomes one point in the blind_command measurement, tagged
// by device, room, command, dispatch kind and status.
package influxdb
