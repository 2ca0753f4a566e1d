package aggregators

import (
	"io"
	"testing"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAlert(t *testing.T) (*ThresholdAlert, *types.MessageQueue) {
	t.Helper()
	alert, err := NewThresholdAlert("alert", 2, 2, newTestLogger())
	require.NoError(t, err)
	queue := types.NewMessageQueue()
	alert.RegisterMessageQueue(queue)
	return alert, queue
}

func event(ts int64) types.Event {
	return types.Event{Timestamp: ts, StatusCode: 200, Section: "/api"}
}

// newFiringAlert leaves the alert FIRING with its FIRING message queued.
func newFiringAlert(t *testing.T) (*ThresholdAlert, *types.MessageQueue) {
	t.Helper()
	alert, queue := newTestAlert(t)
	require.NoError(t, alert.AdvanceTime(1))
	for i := 0; i < 10; i++ {
		alert.Collect(event(int64(i % 5)))
	}
	require.NoError(t, alert.AdvanceTime(3))
	require.Equal(t, types.AlertFiring, alert.Status())
	return alert, queue
}

func TestNewThresholdAlertRejectsInvalidArguments(t *testing.T) {
	_, err := NewThresholdAlert("a", 0, 10, newTestLogger())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))

	_, err = NewThresholdAlert("a", 120, 0, newTestLogger())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
}

func TestAdvanceTimeWithoutQueueFails(t *testing.T) {
	alert, err := NewThresholdAlert("a", 2, 2, newTestLogger())
	require.NoError(t, err)

	err = alert.AdvanceTime(1)
	assert.True(t, errors.HasCode(err, errors.CodePreconditionFailed))
}

func TestAlertDoesNotFireBeforeFullWindow(t *testing.T) {
	alert, queue := newTestAlert(t)

	require.NoError(t, alert.AdvanceTime(1))
	for i := 0; i < 10; i++ {
		alert.Collect(event(1))
	}
	require.NoError(t, alert.AdvanceTime(2))

	// average is already 5, but only one second has elapsed
	assert.Equal(t, types.AlertNotFiring, alert.Status())
	assert.Equal(t, 0, queue.Len())
}

func TestAlertFiresOnceWindowElapsed(t *testing.T) {
	_, queue := newFiringAlert(t)

	require.Equal(t, 1, queue.Len())
	msg, _ := queue.Dequeue()
	assert.Equal(t, "FIRING: High traffic generated an alert - total hits = 10 - on average = 5, triggered at 1970-01-01 00:00:03Z.", msg.Text)
	assert.Equal(t, types.MessageKindAlert, msg.Kind)
	assert.Equal(t, "alert", msg.Source)
	assert.Equal(t, int64(3), msg.Timestamp)
}

func TestAlertDoesNotFireBelowThreshold(t *testing.T) {
	alert, queue := newTestAlert(t)

	require.NoError(t, alert.AdvanceTime(1))
	alert.Collect(event(1))
	alert.Collect(event(2))
	require.NoError(t, alert.AdvanceTime(3))

	assert.Equal(t, types.AlertNotFiring, alert.Status())
	assert.Equal(t, 0, queue.Len())
}

func TestAlertStillFiringEmitsNothing(t *testing.T) {
	alert, queue := newFiringAlert(t)

	for i := 0; i < 10; i++ {
		alert.Collect(event(3))
	}
	require.NoError(t, alert.AdvanceTime(4))

	assert.Equal(t, types.AlertFiring, alert.Status())
	assert.Equal(t, 1, queue.Len())
}

func TestAlertResolves(t *testing.T) {
	alert, queue := newFiringAlert(t)
	queue.Dequeue()

	require.NoError(t, alert.AdvanceTime(10))

	assert.Equal(t, types.AlertNotFiring, alert.Status())
	require.Equal(t, 1, queue.Len())
	msg, _ := queue.Dequeue()
	assert.Equal(t, "RESOLVED: High traffic alert was resolved at 1970-01-01 00:00:10Z - total hits = 0 - on average = 0", msg.Text)

	// staying resolved is silent
	require.NoError(t, alert.AdvanceTime(11))
	assert.Equal(t, 0, queue.Len())
}

func TestAlertAcceptsLateEventsInsideWindow(t *testing.T) {
	alert, queue := newTestAlert(t)

	require.NoError(t, alert.AdvanceTime(1))
	require.NoError(t, alert.AdvanceTime(3))
	for i := 0; i < 4; i++ {
		alert.Collect(event(2))
	}
	require.NoError(t, alert.AdvanceTime(4))

	assert.Equal(t, types.AlertFiring, alert.Status())
	msg, _ := queue.Dequeue()
	assert.Equal(t, "FIRING: High traffic generated an alert - total hits = 4 - on average = 2, triggered at 1970-01-01 00:00:04Z.", msg.Text)
}

func TestAlertRejectsEventsOlderThanWindow(t *testing.T) {
	alert, queue := newTestAlert(t)

	require.NoError(t, alert.AdvanceTime(1))
	require.NoError(t, alert.AdvanceTime(3))
	for i := 0; i < 4; i++ {
		alert.Collect(event(1))
	}
	require.NoError(t, alert.AdvanceTime(4))

	assert.Equal(t, types.AlertNotFiring, alert.Status())
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, int64(4), alert.GetStats()["late_events"])
}

func TestAlertLateBoundary(t *testing.T) {
	alert, _ := newTestAlert(t)
	require.NoError(t, alert.AdvanceTime(10))

	// previousMax - window == 8: equal is rejected, one more is accepted
	alert.Collect(event(8))
	assert.Equal(t, int64(0), alert.counter.Total())
	alert.Collect(event(9))
	assert.Equal(t, int64(1), alert.counter.Total())
}

func TestAlertOneMessagePerTransition(t *testing.T) {
	alert, queue := newTestAlert(t)
	require.NoError(t, alert.AdvanceTime(0))

	// alternate heavy and silent stretches
	ts := int64(0)
	for cycle := 0; cycle < 3; cycle++ {
		for s := 0; s < 4; s++ {
			ts++
			for i := 0; i < 6; i++ {
				alert.Collect(event(ts))
			}
			require.NoError(t, alert.AdvanceTime(ts+1))
		}
		for s := 0; s < 4; s++ {
			ts++
			require.NoError(t, alert.AdvanceTime(ts+1))
		}
	}

	msgs := queue.Drain()
	require.Len(t, msgs, 6)
	for i, msg := range msgs {
		if i%2 == 0 {
			assert.Contains(t, msg.Text, "FIRING:")
		} else {
			assert.Contains(t, msg.Text, "RESOLVED:")
		}
	}
	assert.Equal(t, int64(6), alert.GetStats()["transitions"])
}

func TestAlertIgnoresNonIncreasingClock(t *testing.T) {
	alert, queue := newFiringAlert(t)
	queue.Dequeue()

	require.NoError(t, alert.AdvanceTime(3))
	require.NoError(t, alert.AdvanceTime(2))
	assert.Equal(t, types.AlertFiring, alert.Status())
	assert.Equal(t, int64(3), alert.GetStats()["previous_max_timestamp"])
	assert.Equal(t, 0, queue.Len())
}

func TestAlertLargeClockJumpClearsWindow(t *testing.T) {
	alert, _ := newTestAlert(t)
	require.NoError(t, alert.AdvanceTime(1))
	for i := 0; i < 8; i++ {
		alert.Collect(event(1))
	}
	require.NoError(t, alert.AdvanceTime(1_000_000))

	assert.Equal(t, int64(0), alert.counter.Total())
	assert.Equal(t, int64(1), alert.GetStats()["clock_jumps"])
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "1970-01-01 00:00:03Z", FormatTimestamp(3))
	assert.Equal(t, "2019-02-07 21:11:00Z", FormatTimestamp(1549573860))
}
