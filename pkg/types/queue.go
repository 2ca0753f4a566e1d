package types

import (
	"sync"
)

// MessageQueue is the FIFO shared by every aggregator and the Dispatcher.
// One instance is created per Dispatcher and injected by reference.
type MessageQueue struct {
	mu    sync.Mutex
	items []Message
}

// NewMessageQueue creates an empty queue
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Enqueue appends a message at the tail
func (q *MessageQueue) Enqueue(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

// Dequeue removes the head message. ok is false when the queue is empty.
func (q *MessageQueue) Dequeue() (msg Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Message{}, false
	}
	msg = q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return msg, true
}

// Drain removes and returns every queued message in FIFO order
func (q *MessageQueue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued messages
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
