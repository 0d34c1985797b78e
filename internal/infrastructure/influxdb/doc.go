// Package influxdb records station metrics in InfluxDB.
//
// Two measurements are written, both tagged with the station id:
//   - macro_run: one point per finished run (status, category, step counts,
//     duration)
//   - template_locate: one point per template search (found, passes,
//     elapsed time)
//
// *Client implements locator.Metrics and macro.RunListener so it can be
// handed straight to those components. Writes are non-blocking and batched
// per the influxdb config section (batch_size, flush_interval); write
// errors are delivered to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Station.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package influxdb
