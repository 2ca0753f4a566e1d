package dispatcher

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"ssw-access-monitor/internal/aggregators"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"
	"ssw-access-monitor/pkg/validation"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSink implements types.MessageSink for testing
type MockSink struct {
	mock.Mock
	name string
}

func (m *MockSink) Name() string {
	return m.name
}

func (m *MockSink) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSink) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSink) Send(ctx context.Context, messages []types.Message) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func (m *MockSink) IsHealthy() bool {
	args := m.Called()
	return args.Bool(0)
}

// recordingAggregator logs every call it receives into a shared journal.
type recordingAggregator struct {
	name    string
	journal *[]string
	queue   *types.MessageQueue
	advErr  error
}

func (r *recordingAggregator) Name() string { return r.name }

func (r *recordingAggregator) RegisterMessageQueue(queue *types.MessageQueue) { r.queue = queue }

func (r *recordingAggregator) AdvanceTime(ts int64) error {
	*r.journal = append(*r.journal, fmt.Sprintf("%s.advance(%d)", r.name, ts))
	return r.advErr
}

func (r *recordingAggregator) Collect(event types.Event) {
	*r.journal = append(*r.journal, fmt.Sprintf("%s.collect(%d)", r.name, event.Timestamp))
	r.queue.Enqueue(types.Message{Source: r.name, Text: fmt.Sprintf("%s-%d", r.name, event.Timestamp)})
}

func (r *recordingAggregator) GetStats() map[string]interface{} {
	return map[string]interface{}{"calls": len(*r.journal)}
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(types.DispatcherConfig{}, nil, nil, newTestLogger())
}

func line(ts int64, request string) types.LogLine {
	return types.LogLine{
		RemoteHost: "10.0.0.1",
		RFC931:     "-",
		AuthUser:   "apache",
		Timestamp:  ts,
		Request:    request,
		StatusCode: 200,
		Bytes:      1234,
	}
}

func TestDispatcherCreation(t *testing.T) {
	d := newTestDispatcher()

	assert.Equal(t, int64(-1), d.MaxTimestamp())
	assert.Equal(t, 5*time.Second, d.sendTimeout)
	assert.Empty(t, d.Aggregators())
	assert.False(t, d.IsHealthy())
}

func TestDispatcherCustomSendTimeout(t *testing.T) {
	d := NewDispatcher(types.DispatcherConfig{SendTimeout: "250ms"}, nil, nil, newTestLogger())
	assert.Equal(t, 250*time.Millisecond, d.sendTimeout)

	d = NewDispatcher(types.DispatcherConfig{SendTimeout: "bogus"}, nil, nil, newTestLogger())
	assert.Equal(t, 5*time.Second, d.sendTimeout)
}

func TestDispatcherAdvancesAllBeforeCollecting(t *testing.T) {
	var journal []string
	d := newTestDispatcher()
	d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})
	d.AddAggregator(&recordingAggregator{name: "b", journal: &journal})

	ctx := context.Background()
	require.NoError(t, d.Collect(ctx, types.Event{Timestamp: 10}))
	require.NoError(t, d.Collect(ctx, types.Event{Timestamp: 10}))
	require.NoError(t, d.Collect(ctx, types.Event{Timestamp: 9}))
	require.NoError(t, d.Collect(ctx, types.Event{Timestamp: 11}))

	assert.Equal(t, []string{
		"a.advance(10)", "b.advance(10)", "a.collect(10)", "b.collect(10)",
		"a.collect(10)", "b.collect(10)",
		"a.collect(9)", "b.collect(9)",
		"a.advance(11)", "b.advance(11)", "a.collect(11)", "b.collect(11)",
	}, journal)

	stats := d.GetStats()
	assert.Equal(t, int64(2), stats.ClockAdvances)
	assert.Equal(t, int64(11), stats.MaxTimestamp)
	assert.Equal(t, int64(4), stats.EventsCollected)
	assert.Equal(t, int64(8), stats.MessagesEmitted)
	assert.Equal(t, int64(11), d.MaxTimestamp())
}

func TestDispatcherAdvanceErrorIsReturned(t *testing.T) {
	var journal []string
	d := newTestDispatcher()
	d.AddAggregator(&recordingAggregator{
		name:    "broken",
		journal: &journal,
		advErr:  errors.PreconditionFailed("test", "AdvanceTime", "no queue"),
	})

	err := d.Collect(context.Background(), types.Event{Timestamp: 1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePreconditionFailed))
	assert.NotEmpty(t, d.GetStats().LastError)
}

func TestDispatcherClockHoldsWhenAdvanceFails(t *testing.T) {
	var journal []string
	d := newTestDispatcher()
	healthy := &recordingAggregator{name: "a", journal: &journal}
	broken := &recordingAggregator{
		name:    "b",
		journal: &journal,
		advErr:  errors.PreconditionFailed("test", "AdvanceTime", "no queue"),
	}
	d.AddAggregator(healthy)
	d.AddAggregator(broken)

	ctx := context.Background()
	require.Error(t, d.Collect(ctx, types.Event{Timestamp: 5}))
	assert.Equal(t, int64(-1), d.MaxTimestamp())
	assert.Equal(t, int64(-1), d.GetStats().MaxTimestamp)
	assert.Zero(t, d.GetStats().ClockAdvances)

	// a retry advances every aggregator again before collecting
	broken.advErr = nil
	journal = journal[:0]
	require.NoError(t, d.Collect(ctx, types.Event{Timestamp: 5}))
	assert.Equal(t, []string{"a.advance(5)", "b.advance(5)", "a.collect(5)", "b.collect(5)"}, journal)
	assert.Equal(t, int64(5), d.MaxTimestamp())
	assert.Equal(t, int64(1), d.GetStats().ClockAdvances)
}

func TestDispatcherHandleDropsMalformedRequest(t *testing.T) {
	var journal []string
	d := newTestDispatcher()
	d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})

	ctx := context.Background()
	require.NoError(t, d.Handle(ctx, line(5, "GET /api")))
	require.NoError(t, d.Handle(ctx, line(5, "GET api/user HTTP/1.0")))
	require.NoError(t, d.Handle(ctx, line(5, "GET /api/user HTTP/1.0")))

	assert.Equal(t, []string{"a.advance(5)", "a.collect(5)"}, journal)
	stats := d.GetStats()
	assert.Equal(t, int64(3), stats.LinesHandled)
	assert.Equal(t, int64(2), stats.EventsDropped[DropMalformedRequest])
}

func TestDispatcherHandleAppliesValidator(t *testing.T) {
	var journal []string
	validator := validation.NewRowValidator(types.ValidationConfig{
		Enabled:        true,
		RejectNegative: true,
	}, newTestLogger())
	d := NewDispatcher(types.DispatcherConfig{}, validator, nil, newTestLogger())
	d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})

	require.NoError(t, d.Handle(context.Background(), line(-3, "GET /a HTTP/1.0")))

	assert.Empty(t, journal)
	assert.Equal(t, int64(-1), d.MaxTimestamp())
	assert.Equal(t, int64(1), d.GetStats().EventsDropped[validation.ReasonNegativeTimestamp])
}

func TestDisplayMessagesWithoutSinkFails(t *testing.T) {
	d := newTestDispatcher()

	err := d.DisplayMessages(context.Background())
	assert.True(t, errors.HasCode(err, errors.CodePreconditionFailed))
}

func TestDisplayMessagesDeliversInOrderToEverySink(t *testing.T) {
	var journal []string
	d := newTestDispatcher()
	d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})

	first := &MockSink{name: "first"}
	second := &MockSink{name: "second"}
	var delivered [][]types.Message
	for _, sink := range []*MockSink{first, second} {
		sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			delivered = append(delivered, args.Get(1).([]types.Message))
		}).Return(nil).Once()
		d.AddSink(sink)
	}

	ctx := context.Background()
	for _, ts := range []int64{1, 2, 3} {
		require.NoError(t, d.Collect(ctx, types.Event{Timestamp: ts}))
	}
	require.NoError(t, d.DisplayMessages(ctx))
	// empty queue is not forwarded
	require.NoError(t, d.DisplayMessages(ctx))

	require.Len(t, delivered, 2)
	for _, batch := range delivered {
		require.Len(t, batch, 3)
		assert.Equal(t, "a-1", batch[0].Text)
		assert.Equal(t, "a-2", batch[1].Text)
		assert.Equal(t, "a-3", batch[2].Text)
	}
	first.AssertExpectations(t)
	second.AssertExpectations(t)

	stats := d.GetStats()
	assert.Equal(t, int64(6), stats.MessagesDelivered)
	assert.Equal(t, int64(3), stats.SinkDistribution["first"])
	assert.Equal(t, 0, stats.QueueSize)
}

func TestDisplayMessagesSinkFailure(t *testing.T) {
	var journal []string

	t.Run("logged and skipped by default", func(t *testing.T) {
		d := newTestDispatcher()
		d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})
		failing := &MockSink{name: "failing"}
		failing.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("boom"))
		healthy := &MockSink{name: "healthy"}
		healthy.On("Send", mock.Anything, mock.Anything).Return(nil)
		d.AddSink(failing)
		d.AddSink(healthy)

		require.NoError(t, d.Collect(context.Background(), types.Event{Timestamp: 1}))
		require.NoError(t, d.DisplayMessages(context.Background()))

		stats := d.GetStats()
		assert.Equal(t, int64(1), stats.SinkErrors)
		assert.Equal(t, int64(1), stats.SinkDistribution["healthy"])
		healthy.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("returned when configured", func(t *testing.T) {
		d := NewDispatcher(types.DispatcherConfig{StopOnSinkError: true}, nil, nil, newTestLogger())
		d.AddAggregator(&recordingAggregator{name: "a", journal: &journal})
		failing := &MockSink{name: "failing"}
		failing.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("boom"))
		d.AddSink(failing)

		require.NoError(t, d.Collect(context.Background(), types.Event{Timestamp: 1}))
		err := d.DisplayMessages(context.Background())
		assert.True(t, errors.HasCode(err, errors.CodeSinkSendFailed))
	})
}

func TestDispatcherLifecycle(t *testing.T) {
	d := newTestDispatcher()
	sink := &MockSink{name: "console"}
	sink.On("Start", mock.Anything).Return(nil)
	sink.On("Stop").Return(nil)
	sink.On("IsHealthy").Return(true)
	d.AddSink(sink)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.Error(t, d.Start(ctx))
	assert.True(t, d.IsHealthy())

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.False(t, d.IsHealthy())
	sink.AssertNumberOfCalls(t, "Stop", 1)
}

func TestDispatcherStartSinkFailure(t *testing.T) {
	d := newTestDispatcher()
	sink := &MockSink{name: "kafka"}
	sink.On("Start", mock.Anything).Return(fmt.Errorf("no brokers"))
	d.AddSink(sink)

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka")
}

func TestDispatcherEndToEndWithAggregators(t *testing.T) {
	d := newTestDispatcher()
	report, err := aggregators.NewTumblingReport("report", 2, 5, newTestLogger())
	require.NoError(t, err)
	alert, err := aggregators.NewThresholdAlert("alert", 2, 2, newTestLogger())
	require.NoError(t, err)
	d.AddAggregator(report)
	d.AddAggregator(alert)

	sink := &MockSink{name: "memory"}
	var texts []string
	sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		for _, msg := range args.Get(1).([]types.Message) {
			texts = append(texts, msg.Text)
		}
	}).Return(nil)
	d.AddSink(sink)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Handle(ctx, line(1+int64(i%2), "GET /api/user HTTP/1.0")))
	}
	require.NoError(t, d.Handle(ctx, line(3, "GET /report HTTP/1.0")))
	require.NoError(t, d.DisplayMessages(ctx))

	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:03Z EXCLUSIVE\nTOTAL HITS: 10 \n")
	assert.Equal(t, "FIRING: High traffic generated an alert - total hits = 10 - on average = 5, triggered at 1970-01-01 00:00:03Z.", texts[1])

	aggStats := d.AggregatorStats()
	require.Contains(t, aggStats, "alert")
	assert.Equal(t, "FIRING", aggStats["alert"]["status"])
	assert.Equal(t, []string{"report", "alert"}, d.Aggregators())
}

func TestDispatcherFlush(t *testing.T) {
	d := newTestDispatcher()
	report, err := aggregators.NewTumblingReport("report", 10, 5, newTestLogger())
	require.NoError(t, err)
	d.AddAggregator(report)

	ctx := context.Background()
	require.NoError(t, d.Flush(ctx))
	require.NoError(t, d.Handle(ctx, line(1, "GET /a HTTP/1.0")))
	require.NoError(t, d.Handle(ctx, line(4, "GET /a HTTP/1.0")))
	require.NoError(t, d.Flush(ctx))

	msgs := d.queue.Drain()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:05Z EXCLUSIVE")
}
