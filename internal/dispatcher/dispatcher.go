// Package dispatcher provides the event-time orchestration between input
// sources, windowed aggregators and output sinks.
//
// The dispatcher is the central component responsible for:
//   - Receiving decoded access-log rows from the input monitors
//   - Validating rows and deriving the aggregator Event from the request line
//   - Owning the monotonic event-time clock (maximum timestamp seen so far)
//   - Advancing every aggregator exactly once per distinct clock increase
//   - Fanning every event out to all aggregators in registration order
//   - Draining the shared message queue to every sink in FIFO order
//
// Example usage:
//
//	d := NewDispatcher(types.DispatcherConfig{}, validator, tracer, logger)
//	d.AddAggregator(report)
//	d.AddAggregator(alert)
//	d.AddSink(consoleSink)
//	d.Start(ctx)
//	for line := range lines {
//		d.Handle(ctx, line)
//		d.DisplayMessages(ctx)
//	}
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/internal/processing"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"
	"ssw-access-monitor/pkg/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Drop reasons reported in stats and metrics
const (
	DropMalformedRequest = "malformed_request"
)

// Flusher is implemented by aggregators that can emit a partial period
// when the input is exhausted.
type Flusher interface {
	Flush(endExclusive int64) error
}

// Dispatcher orchestrates the flow from decoded rows to emitted messages.
//
// Core Functionality:
//   - Event-time clock: maxTimestamp starts at -1 and only moves forward
//   - Ordered fan-out: for each event, every aggregator first observes the
//     new clock (AdvanceTime) and then the event itself (Collect)
//   - Shared FIFO: one MessageQueue is created here and injected into every
//     aggregator; DisplayMessages drains it to the sinks
//
// Thread-safety:
//   - Handle, Collect, DisplayMessages and Flush are serialised by a single
//     mutex, so aggregator outputs stay deterministic for a given input order
//   - GetStats and AggregatorStats may be called concurrently (HTTP API)
type Dispatcher struct {
	// Core configuration and logging
	config    types.DispatcherConfig   // Dispatcher configuration parameters
	logger    *logrus.Logger           // Structured logger for dispatcher events
	tracer    oteltrace.Tracer         // Spans for clock advances and sink flushes
	validator *validation.RowValidator // Optional row validation, nil disables it

	// Pipeline state, guarded by mutex
	aggregators  []types.Aggregator
	sinks        []types.MessageSink
	queue        *types.MessageQueue
	maxTimestamp int64
	sendTimeout  time.Duration

	stats      types.DispatcherStats // Real-time operational statistics
	statsMutex sync.RWMutex          // Mutex for thread-safe statistics access

	// Lifecycle management
	isRunning bool
	mutex     sync.Mutex
}

// NewDispatcher creates a dispatcher with an empty aggregator and sink list.
//
// Parameters:
//   - config: Dispatcher settings (sink timeout, error policy)
//   - validator: Row validator, may be nil
//   - tracer: OpenTelemetry tracer, nil selects the global provider's tracer
//   - logger: Structured logger
//
// Returns:
//   - *Dispatcher: Dispatcher with its MessageQueue created
func NewDispatcher(config types.DispatcherConfig, validator *validation.RowValidator, tracer oteltrace.Tracer, logger *logrus.Logger) *Dispatcher {
	if tracer == nil {
		tracer = otel.Tracer("ssw-access-monitor/dispatcher")
	}

	sendTimeout := 5 * time.Second
	if config.SendTimeout != "" {
		if timeout, err := time.ParseDuration(config.SendTimeout); err == nil && timeout > 0 {
			sendTimeout = timeout
		} else {
			logger.WithField("send_timeout", config.SendTimeout).Warn("Invalid dispatcher send timeout, using default")
		}
	}

	return &Dispatcher{
		config:       config,
		logger:       logger,
		tracer:       tracer,
		validator:    validator,
		queue:        types.NewMessageQueue(),
		maxTimestamp: -1,
		sendTimeout:  sendTimeout,
		stats: types.DispatcherStats{
			EventsDropped:    make(map[string]int64),
			SinkDistribution: make(map[string]int64),
			MaxTimestamp:     -1,
		},
	}
}

// AddAggregator registers an aggregator and injects the shared queue into it.
// Aggregators are invoked in the order they were added.
func (d *Dispatcher) AddAggregator(aggregator types.Aggregator) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	aggregator.RegisterMessageQueue(d.queue)
	d.aggregators = append(d.aggregators, aggregator)
	d.logger.WithFields(logrus.Fields{
		"aggregator":       aggregator.Name(),
		"aggregator_count": len(d.aggregators),
	}).Info("Aggregator added to dispatcher")
}

// AddSink registers an output destination. Every sink receives every message.
func (d *Dispatcher) AddSink(sink types.MessageSink) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.sinks = append(d.sinks, sink)
	d.logger.WithFields(logrus.Fields{
		"sink":       sink.Name(),
		"sink_count": len(d.sinks),
	}).Info("Sink added to dispatcher")
}

// Start starts every registered sink.
//
// Returns:
//   - error: Already running, or the first sink that failed to start
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.isRunning {
		return fmt.Errorf("dispatcher already running")
	}

	for _, sink := range d.sinks {
		if err := sink.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sink %s: %w", sink.Name(), err)
		}
		metrics.SetComponentHealth("sink", sink.Name(), sink.IsHealthy())
	}

	d.isRunning = true
	d.logger.WithFields(logrus.Fields{
		"aggregators":  len(d.aggregators),
		"sinks":        len(d.sinks),
		"send_timeout": d.sendTimeout,
	}).Info("Dispatcher started")
	return nil
}

// Stop stops every sink. Queued messages should be drained with
// DisplayMessages before calling Stop. Safe to call more than once.
func (d *Dispatcher) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.isRunning {
		return nil
	}
	d.isRunning = false

	if pending := d.queue.Len(); pending > 0 {
		d.logger.WithField("pending_messages", pending).Warn("Stopping dispatcher with undelivered messages")
	}

	for _, sink := range d.sinks {
		if err := sink.Stop(); err != nil {
			d.logger.WithError(err).WithField("sink", sink.Name()).Error("Failed to stop sink")
		}
		metrics.SetComponentHealth("sink", sink.Name(), false)
	}

	d.logger.Info("Dispatcher stopped")
	return nil
}

// Handle is the entry point for decoded input rows.
//
// Processing steps:
//  1. Row validation (when a validator is configured)
//  2. Request line parsing into an Event
//  3. Collect
//
// Rows rejected in steps 1 or 2 are dropped with a warning and counted;
// they never reach an aggregator and are not reported as errors.
//
// Returns:
//   - error: Only aggregator precondition failures from Collect
func (d *Dispatcher) Handle(ctx context.Context, line types.LogLine) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.updateStats(func(s *types.DispatcherStats) {
		s.LinesHandled++
	})

	if d.validator != nil {
		if result := d.validator.Validate(line, d.maxTimestamp); !result.Valid {
			d.drop(result.Reason, line, result.Detail)
			return nil
		}
	}

	event, err := processing.ToEvent(line)
	if err != nil {
		d.drop(DropMalformedRequest, line, err.Error())
		return nil
	}

	return d.collectLocked(ctx, event)
}

// Collect feeds an already parsed event to every aggregator.
//
// When event.Timestamp is strictly greater than the clock, the clock moves
// and AdvanceTime(newMax) is called on every aggregator before any of them
// collects the event. Otherwise only Collect is called.
func (d *Dispatcher) Collect(ctx context.Context, event types.Event) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.collectLocked(ctx, event)
}

func (d *Dispatcher) collectLocked(ctx context.Context, event types.Event) error {
	before := d.queue.Len()

	if event.Timestamp > d.maxTimestamp {
		if err := d.advanceLocked(ctx, event.Timestamp); err != nil {
			return err
		}
	}

	for _, aggregator := range d.aggregators {
		aggregator.Collect(event)
	}

	emitted := d.queue.Len() - before
	d.updateStats(func(s *types.DispatcherStats) {
		s.EventsCollected++
		s.MessagesEmitted += int64(emitted)
		s.QueueSize = d.queue.Len()
		s.LastProcessedTime = time.Now()
	})
	return nil
}

func (d *Dispatcher) advanceLocked(ctx context.Context, newMax int64) error {
	_, span := d.tracer.Start(ctx, "dispatcher.advance_time",
		oteltrace.WithAttributes(
			attribute.Int64("clock.previous", d.maxTimestamp),
			attribute.Int64("clock.new", newMax),
		))
	defer span.End()

	// O relógio só avança depois que todos os agregadores aceitaram newMax;
	// uma nova tentativa reenvia o avanço a todos.
	for _, aggregator := range d.aggregators {
		if err := aggregator.AdvanceTime(newMax); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.recordError(err)
			return fmt.Errorf("advance %s to %d: %w", aggregator.Name(), newMax, err)
		}
	}

	d.maxTimestamp = newMax
	metrics.SetClock(newMax)
	d.updateStats(func(s *types.DispatcherStats) {
		s.ClockAdvances++
		s.MaxTimestamp = newMax
	})
	return nil
}

// Flush closes open periods of every aggregator implementing Flusher, as if
// the clock had moved one second past the last timestamp seen. Nothing
// happens before the first event.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.maxTimestamp == -1 {
		return nil
	}

	for _, aggregator := range d.aggregators {
		flusher, ok := aggregator.(Flusher)
		if !ok {
			continue
		}
		if err := flusher.Flush(d.maxTimestamp + 1); err != nil {
			return fmt.Errorf("flush %s: %w", aggregator.Name(), err)
		}
	}
	return nil
}

// DisplayMessages drains the shared queue and forwards the messages, in
// FIFO order, to every sink.
//
// Error Handling:
//   - No sink registered: PRECONDITION_FAILED, the queue is left untouched
//   - Sink failure: logged and counted; returned only when
//     StopOnSinkError is set
func (d *Dispatcher) DisplayMessages(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.sinks) == 0 {
		return errors.PreconditionFailed("dispatcher", "DisplayMessages", "no sink registered").
			WithMetadata("pending_messages", d.queue.Len())
	}

	messages := d.queue.Drain()
	if len(messages) == 0 {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.display_messages",
		oteltrace.WithAttributes(attribute.Int("messages", len(messages))))
	defer span.End()

	for _, sink := range d.sinks {
		if err := d.sendToSink(ctx, sink, messages); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if d.config.StopOnSinkError {
				return err
			}
		}
	}

	d.updateStats(func(s *types.DispatcherStats) {
		s.QueueSize = d.queue.Len()
	})
	return nil
}

func (d *Dispatcher) sendToSink(ctx context.Context, sink types.MessageSink, messages []types.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	err := sink.Send(sendCtx, messages)
	metrics.RecordSinkSendDuration(sink.Name(), time.Since(start))

	if err != nil {
		appErr := errors.WrapError(err, errors.CodeSinkSendFailed, "dispatcher", "DisplayMessages", "sink send failed").
			WithMetadata("sink", sink.Name()).
			WithMetadata("messages", len(messages))
		d.logger.WithFields(appErr.ToMap()).Error("Failed to deliver messages to sink")
		metrics.RecordMessageSent(sink.Name(), "error")
		metrics.SetComponentHealth("sink", sink.Name(), false)
		d.recordError(appErr)
		d.updateStats(func(s *types.DispatcherStats) {
			s.SinkErrors++
		})
		return appErr
	}

	for range messages {
		metrics.RecordMessageSent(sink.Name(), "success")
	}
	metrics.SetComponentHealth("sink", sink.Name(), true)
	d.updateStats(func(s *types.DispatcherStats) {
		s.MessagesDelivered += int64(len(messages))
		s.SinkDistribution[sink.Name()] += int64(len(messages))
	})
	return nil
}

func (d *Dispatcher) drop(reason string, line types.LogLine, detail string) {
	metrics.RecordEventDropped(reason)
	d.updateStats(func(s *types.DispatcherStats) {
		s.EventsDropped[reason]++
	})
	d.logger.WithFields(logrus.Fields{
		"reason":    reason,
		"detail":    detail,
		"request":   line.Request,
		"timestamp": line.Timestamp,
	}).Warn("Dropping input row")
}

func (d *Dispatcher) recordError(err error) {
	component := "dispatcher"
	if appErr, ok := errors.AsAppError(err); ok {
		component = appErr.Component
		metrics.RecordError(component, appErr.Code)
	} else {
		metrics.RecordError(component, "unknown")
	}
	d.updateStats(func(s *types.DispatcherStats) {
		s.LastError = err.Error()
	})
}

// MaxTimestamp returns the event-time clock, -1 before the first event.
func (d *Dispatcher) MaxTimestamp() int64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.maxTimestamp
}

// Aggregators returns the registered aggregator names in invocation order.
func (d *Dispatcher) Aggregators() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	names := make([]string, len(d.aggregators))
	for i, aggregator := range d.aggregators {
		names[i] = aggregator.Name()
	}
	return names
}

// AggregatorStats returns every aggregator's snapshot keyed by name.
func (d *Dispatcher) AggregatorStats() map[string]map[string]interface{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	out := make(map[string]map[string]interface{}, len(d.aggregators))
	for _, aggregator := range d.aggregators {
		out[aggregator.Name()] = aggregator.GetStats()
	}
	return out
}

// IsHealthy reports whether the dispatcher runs and every sink is healthy.
func (d *Dispatcher) IsHealthy() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.isRunning {
		return false
	}
	for _, sink := range d.sinks {
		if !sink.IsHealthy() {
			return false
		}
	}
	return true
}
