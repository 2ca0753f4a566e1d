// Package types - Interface definitions for pluggable components
package types

import (
	"context"
)

// Aggregator defines the contract shared by every windowed statistic.
//
// The Dispatcher owns the clock: AdvanceTime is called once per distinct
// increase of the maximum event timestamp, always before Collect for the
// event that caused it. Messages are written to the queue registered with
// RegisterMessageQueue.
type Aggregator interface {
	// Name identifies the aggregator in logs, metrics and emitted messages
	Name() string
	// RegisterMessageQueue injects the shared output queue
	RegisterMessageQueue(queue *MessageQueue)
	// AdvanceTime moves the aggregator's notion of "now" to maxTimestamp
	AdvanceTime(maxTimestamp int64) error
	// Collect accounts a single event
	Collect(event Event)
	// GetStats returns a snapshot for the HTTP API
	GetStats() map[string]interface{}
}

// MessageSink defines the interface for message output destinations.
//
// Sinks receive the messages drained from the Dispatcher queue, in order,
// and deliver them to their configured destinations.
type MessageSink interface {
	// Name identifies the sink
	Name() string
	// Start initializes the sink and prepares it for receiving messages
	Start(ctx context.Context) error
	// Send delivers an ordered batch of messages
	Send(ctx context.Context, messages []Message) error
	// Stop gracefully shuts down the sink and flushes any buffered data
	Stop() error
	// IsHealthy checks if the sink is operational
	IsHealthy() bool
}

// Monitor defines the interface for input sources.
//
// Monitors read raw CSV from a file or stdin in their own goroutine,
// decode it and publish every LogLine, in input order, on Lines.
type Monitor interface {
	// Start begins reading; it returns once the reader goroutine is running
	Start(ctx context.Context) error
	// Stop gracefully shuts down the monitor and releases resources
	Stop() error
	// Lines is closed when the input has been exhausted or the monitor stopped
	Lines() <-chan LogLine
	// IsHealthy reports whether the monitor is operational
	IsHealthy() bool
	// GetStatus returns the current monitor status
	GetStatus() MonitorStatus
}
