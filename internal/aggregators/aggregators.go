// Package aggregators contains the windowed statistics fed by the dispatcher:
// the sliding-window threshold alert and the tumbling-window summary report.
package aggregators

import (
	"time"
)

// TimestampLayout renders epoch seconds as a sortable UTC string, e.g.
// "1970-01-01 00:00:03Z".
const TimestampLayout = "2006-01-02 15:04:05Z"

// FormatTimestamp formats epoch seconds with TimestampLayout.
func FormatTimestamp(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format(TimestampLayout)
}
