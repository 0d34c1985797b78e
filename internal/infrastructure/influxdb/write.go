package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/acs-auto/internal/macro"
)

// Measurement names.
const (
	MeasurementRun    = "macro_run"
	MeasurementLocate = "template_locate"
)

// WriteRunMetric records a finished run. Runs still in progress are
// ignored.
func (c *Client) WriteRunMetric(run *macro.Run) {
	if run == nil || !run.Finished() {
		return
	}
	c.writePoint(runPoint(c.station, run))
}

// WriteLocateMetric records one template search.
func (c *Client) WriteLocateMetric(key string, found bool, passes int, elapsed time.Duration) {
	c.writePoint(locatePoint(c.station, key, found, passes, elapsed, time.Now()))
}

// RecordLocate implements locator.Metrics.
func (c *Client) RecordLocate(key string, found bool, passes int, elapsed time.Duration) {
	c.WriteLocateMetric(key, found, passes, elapsed)
}

// RunStarted implements macro.RunListener. Only finished runs are
// recorded.
func (c *Client) RunStarted(*macro.Run) {}

// RunFinished implements macro.RunListener.
func (c *Client) RunFinished(run *macro.Run) {
	c.WriteRunMetric(run)
}

func runPoint(station string, run *macro.Run) *write.Point {
	fields := map[string]interface{}{
		"steps_total":     int64(run.StepsTotal),
		"steps_completed": int64(run.StepsCompleted),
		"steps_failed":    int64(run.StepsFailed),
		"results":         int64(len(run.Results)),
	}
	if run.DurationMS != nil {
		fields["duration_ms"] = int64(*run.DurationMS)
	}

	ts := run.StartedAt
	if run.CompletedAt != nil {
		ts = *run.CompletedAt
	}

	return write.NewPoint(
		MeasurementRun,
		map[string]string{
			"station":  station,
			"category": string(run.Category),
			"macro":    run.MacroName,
			"status":   string(run.Status),
			"source":   run.Source,
		},
		fields,
		ts,
	)
}

func locatePoint(station, key string, found bool, passes int, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLocate,
		map[string]string{
			"station": station,
			"key":     key,
		},
		map[string]interface{}{
			"found":      found,
			"passes":     int64(passes),
			"elapsed_ms": float64(elapsed) / float64(time.Millisecond),
		},
		ts,
	)
}
