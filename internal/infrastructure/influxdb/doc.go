// Package influxdb writes boardd metrics to InfluxDB.
//
// It wraps influxdb-client-go v2 with batched, non-blocking writes of two
// measurements:
//
//	board_matrix   tags: board                   fields: pressed
//	board_command  tags: board, command, status  fields: duration_ms, ok
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMatrix("7", 2)
//
// Batching follows influxdb.batch_size and influxdb.flush_interval.
package influxdb
