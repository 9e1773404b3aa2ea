package influxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tabi-core/internal/dispatch"
)

// measurementCommand holds one point per device per dispatch.
const measurementCommand = "blind_command"

// RecordDispatch queues one point per outcome. It never blocks on the
// network; write errors go to the WithErrorHandler callback.
func (c *Client) RecordDispatch(_ context.Context, rec dispatch.Record) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	for _, o := range rec.Outcomes {
		c.writes.WritePoint(outcomePoint(rec, o))
	}
	return nil
}

func outcomePoint(rec dispatch.Record, o dispatch.Outcome) *write.Point {
	success := 0
	if o.Status == dispatch.StatusSuccess {
		success = 1
	}
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"device_id": o.DeviceID,
			"room":      o.Room,
			"command":   rec.Command.Wire(),
			"kind":      string(rec.Kind),
			"status":    string(o.Status),
		},
		map[string]interface{}{
			"success":     success,
			"dispatch_id": rec.ID,
		},
		rec.Timestamp,
	)
}
