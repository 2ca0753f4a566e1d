package aggregators

import (
	"fmt"
	"strings"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/topk"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

// DefaultTopSections is the number of sections listed in a report
const DefaultTopSections = 5

// TumblingReport summarises traffic over consecutive, non-overlapping periods
// of windowSeconds. A period [start, end) is reported when the clock reaches
// end; the event at end already belongs to the next period.
type TumblingReport struct {
	name          string
	windowSeconds int64
	topSections   int
	logger        *logrus.Logger

	queue       *types.MessageQueue
	accumulator *ReportAccumulator

	// -1 until the first AdvanceTime
	windowStart int64

	reportsEmitted int64
	lateEvents     int64
	lastReport     string
}

// NewTumblingReport creates a report over windowSeconds periods. topSections
// <= 0 selects DefaultTopSections.
func NewTumblingReport(name string, windowSeconds, topSections int, logger *logrus.Logger) (*TumblingReport, error) {
	if windowSeconds < 1 {
		return nil, errors.InvalidArgument("tumbling_report", "NewTumblingReport",
			fmt.Sprintf("window must be at least 1 second, got %d", windowSeconds))
	}
	if topSections <= 0 {
		topSections = DefaultTopSections
	}

	return &TumblingReport{
		name:          name,
		windowSeconds: int64(windowSeconds),
		topSections:   topSections,
		logger:        logger,
		accumulator:   NewReportAccumulator(),
		windowStart:   -1,
	}, nil
}

// Name returns the aggregator name
func (r *TumblingReport) Name() string {
	return r.name
}

// RegisterMessageQueue injects the shared output queue
func (r *TumblingReport) RegisterMessageQueue(queue *types.MessageQueue) {
	r.queue = queue
}

// WindowStart returns the first second of the current period, -1 before the first AdvanceTime
func (r *TumblingReport) WindowStart() int64 {
	return r.windowStart
}

// AdvanceTime closes the current period once it has lasted windowSeconds.
func (r *TumblingReport) AdvanceTime(maxTimestamp int64) error {
	if r.queue == nil {
		return errors.PreconditionFailed("tumbling_report", "AdvanceTime", "no message queue registered").
			WithMetadata("aggregator", r.name)
	}

	if r.windowStart == -1 {
		r.windowStart = maxTimestamp
		return nil
	}

	if maxTimestamp-r.windowStart >= r.windowSeconds {
		r.publish(r.windowStart, maxTimestamp)
		r.windowStart = maxTimestamp
	}
	return nil
}

// Flush reports the open period up to endExclusive regardless of its length.
// Used when the input is exhausted. Nothing is emitted before the first
// AdvanceTime or when endExclusive does not move past the period start.
func (r *TumblingReport) Flush(endExclusive int64) error {
	if r.queue == nil {
		return errors.PreconditionFailed("tumbling_report", "Flush", "no message queue registered").
			WithMetadata("aggregator", r.name)
	}
	if r.windowStart == -1 || endExclusive <= r.windowStart {
		return nil
	}

	r.publish(r.windowStart, endExclusive)
	r.windowStart = endExclusive
	return nil
}

// Collect accounts the event unless it precedes the current period.
func (r *TumblingReport) Collect(event types.Event) {
	if event.Timestamp < r.windowStart {
		r.lateEvents++
		metrics.RecordLateEvent(r.name)
		return
	}

	r.accumulator.Add(event.Section, event.StatusCode)
	metrics.RecordEventCollected(r.name)
}

func (r *TumblingReport) publish(start, endExclusive int64) {
	text := r.render(start, endExclusive)
	total := r.accumulator.TotalHits()
	r.accumulator.Clear()

	r.queue.Enqueue(types.Message{
		Source:    r.name,
		Kind:      types.MessageKindReport,
		Timestamp: endExclusive,
		Text:      text,
	})
	r.reportsEmitted++
	r.lastReport = text

	metrics.RecordMessageEmitted(r.name, types.MessageKindReport)
	metrics.SetReportTotalHits(r.name, total)
	r.logger.WithFields(logrus.Fields{
		"aggregator": r.name,
		"from":       start,
		"to":         endExclusive,
		"total_hits": total,
	}).Debug("Report period closed")
}

// render builds the report text for [start, endExclusive).
func (r *TumblingReport) render(start, endExclusive int64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "REPORT - FROM %s TO %s EXCLUSIVE\n", FormatTimestamp(start), FormatTimestamp(endExclusive))
	fmt.Fprintf(&b, "TOTAL HITS: %d \n", r.accumulator.TotalHits())
	fmt.Fprintf(&b, "TOP %d SECTIONS HITS: \n", r.topSections)

	for _, entry := range topk.Select(r.accumulator.Sections(), r.topSections) {
		fmt.Fprintf(&b, "SECTION: %s HITS: %d \n", entry.Key, entry.Count)
	}
	for _, row := range r.accumulator.StatusCodes() {
		fmt.Fprintf(&b, "HTTP_CODE: %d HITS: %d \n", row.Code, row.Hits)
	}

	return b.String()
}

// GetStats returns a snapshot of the report
func (r *TumblingReport) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"type":            "tumbling_report",
		"window_seconds":  r.windowSeconds,
		"top_sections":    r.topSections,
		"window_start":    r.windowStart,
		"current_hits":    r.accumulator.TotalHits(),
		"reports_emitted": r.reportsEmitted,
		"late_events":     r.lateEvents,
		"last_report":     r.lastReport,
	}
}
