package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by boardd.
const (
	// MeasurementMatrix records the pressed-key count on each matrix change.
	MeasurementMatrix = "board_matrix"

	// MeasurementCommand records the outcome and latency of each command.
	MeasurementCommand = "board_command"
)

// WriteMatrix records a key matrix change of a board.
//
//	board_matrix,board=7 pressed=2i
func (c *Client) WriteMatrix(boardID string, pressed int) {
	c.WritePoint(MeasurementMatrix,
		map[string]string{"board": boardID},
		map[string]interface{}{"pressed": int64(pressed)},
	)
}

// WriteCommand records the result of one board command. Tags stay low
// cardinality: board, command name and ack status.
//
//	board_command,board=7,command=set_color,status=completed duration_ms=0.42,ok=true
func (c *Client) WriteCommand(boardID, command, status string, duration time.Duration) {
	c.WritePoint(MeasurementCommand,
		map[string]string{
			"board":   boardID,
			"command": command,
			"status":  status,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"ok":          status == "completed",
		},
	)
}

// WritePoint writes a point stamped with the current time. The write is
// non-blocking and batched; it is dropped while disconnected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
