package aggregators

import (
	"fmt"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"
	"ssw-access-monitor/pkg/window"

	"github.com/sirupsen/logrus"
)

// ThresholdAlert fires when the average hits per second over the last
// windowSeconds reaches threshold, and resolves when it drops below it.
//
// Notification is edge-triggered: one message per state transition. The
// alert never fires before a full window has elapsed since the first
// timestamp it saw.
type ThresholdAlert struct {
	name          string
	windowSeconds int64
	threshold     int64
	logger        *logrus.Logger

	counter *window.SlidingCounter
	queue   *types.MessageQueue

	status types.AlertStatus
	// -1 until the first AdvanceTime
	startTimestamp       int64
	previousMaxTimestamp int64

	collected   int64
	lateEvents  int64
	transitions int64
	clockJumps  int64
}

// NewThresholdAlert creates an alert over a windowSeconds sliding window.
func NewThresholdAlert(name string, windowSeconds, threshold int, logger *logrus.Logger) (*ThresholdAlert, error) {
	if windowSeconds < 1 {
		return nil, errors.InvalidArgument("threshold_alert", "NewThresholdAlert",
			fmt.Sprintf("window must be at least 1 second, got %d", windowSeconds))
	}
	if threshold < 1 {
		return nil, errors.InvalidArgument("threshold_alert", "NewThresholdAlert",
			fmt.Sprintf("average threshold must be at least 1, got %d", threshold))
	}

	counter, err := window.NewSlidingCounter(windowSeconds)
	if err != nil {
		return nil, err
	}

	return &ThresholdAlert{
		name:                 name,
		windowSeconds:        int64(windowSeconds),
		threshold:            int64(threshold),
		logger:               logger,
		counter:              counter,
		status:               types.AlertNotFiring,
		startTimestamp:       -1,
		previousMaxTimestamp: -1,
	}, nil
}

// Name returns the aggregator name
func (a *ThresholdAlert) Name() string {
	return a.name
}

// RegisterMessageQueue injects the shared output queue
func (a *ThresholdAlert) RegisterMessageQueue(queue *types.MessageQueue) {
	a.queue = queue
}

// Status returns the current alert state
func (a *ThresholdAlert) Status() types.AlertStatus {
	return a.status
}

// AdvanceTime evaluates the state machine at maxTimestamp, then slides the
// window so that it ends at maxTimestamp. Timestamps that do not move the
// clock forward are ignored.
func (a *ThresholdAlert) AdvanceTime(maxTimestamp int64) error {
	if a.queue == nil {
		return errors.PreconditionFailed("threshold_alert", "AdvanceTime", "no message queue registered").
			WithMetadata("aggregator", a.name)
	}
	if a.previousMaxTimestamp > -1 && maxTimestamp <= a.previousMaxTimestamp {
		return nil
	}

	fire := a.shouldFire(maxTimestamp)
	switch {
	case a.status == types.AlertNotFiring && fire:
		a.emit(fmt.Sprintf("FIRING: High traffic generated an alert - total hits = %d - on average = %d, triggered at %s.",
			a.counter.Total(), a.counter.Average(), FormatTimestamp(maxTimestamp)), maxTimestamp)
		a.status = types.AlertFiring
		a.transitions++
	case a.status == types.AlertFiring && !fire:
		a.emit(fmt.Sprintf("RESOLVED: High traffic alert was resolved at %s - total hits = %d - on average = %d",
			FormatTimestamp(maxTimestamp), a.counter.Total(), a.counter.Average()), maxTimestamp)
		a.status = types.AlertNotFiring
		a.transitions++
	}

	if a.previousMaxTimestamp > -1 {
		if gap := maxTimestamp - a.previousMaxTimestamp; gap > a.windowSeconds {
			a.clockJumps++
			metrics.RecordClockJump(a.name)
			a.logger.WithFields(logrus.Fields{
				"aggregator":     a.name,
				"from":           a.previousMaxTimestamp,
				"to":             maxTimestamp,
				"gap_seconds":    gap,
				"window_seconds": a.windowSeconds,
			}).Warn("Event clock jumped past the whole alert window")
		}
		// seconds without traffic must be retired too
		a.counter.CloseRange(a.previousMaxTimestamp+1, maxTimestamp)
	}

	if a.startTimestamp == -1 {
		a.startTimestamp = maxTimestamp
	}
	a.previousMaxTimestamp = maxTimestamp

	metrics.SetSlidingWindow(a.name, a.counter.Total(), a.counter.Average())
	metrics.SetAlertFiring(a.name, a.status == types.AlertFiring)
	return nil
}

// shouldFire is false until a full window has elapsed since the first timestamp.
func (a *ThresholdAlert) shouldFire(maxTimestamp int64) bool {
	if a.startTimestamp == -1 || maxTimestamp < a.startTimestamp+a.windowSeconds {
		return false
	}
	return a.counter.Average() >= a.threshold
}

// Collect counts the event unless its second was already retired from the window.
func (a *ThresholdAlert) Collect(event types.Event) {
	if event.Timestamp <= a.previousMaxTimestamp-a.windowSeconds {
		a.lateEvents++
		metrics.RecordLateEvent(a.name)
		a.logger.WithFields(logrus.Fields{
			"aggregator":    a.name,
			"timestamp":     event.Timestamp,
			"max_timestamp": a.previousMaxTimestamp,
		}).Debug("Dropping late event")
		return
	}

	a.counter.Increment(event.Timestamp)
	a.collected++
	metrics.RecordEventCollected(a.name)
}

func (a *ThresholdAlert) emit(text string, timestamp int64) {
	a.queue.Enqueue(types.Message{
		Source:    a.name,
		Kind:      types.MessageKindAlert,
		Timestamp: timestamp,
		Text:      text,
	})
	metrics.RecordMessageEmitted(a.name, types.MessageKindAlert)

	a.logger.WithFields(logrus.Fields{
		"aggregator": a.name,
		"timestamp":  timestamp,
		"total":      a.counter.Total(),
		"average":    a.counter.Average(),
	}).Info("Alert state changed")
}

// GetStats returns a snapshot of the alert
func (a *ThresholdAlert) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"type":                   "threshold_alert",
		"status":                 a.status.String(),
		"window_seconds":         a.windowSeconds,
		"average_threshold":      a.threshold,
		"total":                  a.counter.Total(),
		"average":                a.counter.Average(),
		"start_timestamp":        a.startTimestamp,
		"previous_max_timestamp": a.previousMaxTimestamp,
		"events_collected":       a.collected,
		"late_events":            a.lateEvents,
		"transitions":            a.transitions,
		"clock_jumps":            a.clockJumps,
	}
}
