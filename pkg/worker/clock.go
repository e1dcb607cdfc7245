package worker

import "time"

// perfEpoch anchors the worker's monotonic "perf" clock. Every perf-ns
// timestamp recorded on a RequestRecord is nanoseconds elapsed since this
// instant, computed via time.Since so the reading is monotonic even across
// NTP wall-clock adjustments (time.Time retains a monotonic component until
// it is stripped, which time.Since preserves).
var perfEpoch = time.Now()

func perfNowNS() int64 {
	return time.Since(perfEpoch).Nanoseconds()
}
