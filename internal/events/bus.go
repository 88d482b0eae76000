package events

import (
	"sync"
	"time"
)

// BusEventType identifies a run lifecycle notification.
type BusEventType string

const (
	// BusRunCreated is published when a run is accepted and a worker starts.
	BusRunCreated BusEventType = "run_created"
	// BusRunWaitingApproval is published when a run suspends on an approval.
	BusRunWaitingApproval BusEventType = "run_waiting_approval"
	// BusRunCompleted is published when a run reaches a final response.
	BusRunCompleted BusEventType = "run_completed"
	// BusRunFailed is published when a run aborts.
	BusRunFailed BusEventType = "run_failed"
)

// BusEvent is a run lifecycle notification delivered to observers.
type BusEvent struct {
	Type      BusEventType
	RunID     string
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber is a function that receives bus events.
type Subscriber func(BusEvent)

// Bus is a non-blocking publish/subscribe fan-out for run lifecycle
// notifications. Delivery is asynchronous via buffered channels; a slow
// observer has its events dropped rather than stalling a run.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[BusEventType][]chan BusEvent
	bufferSize  int
}

// NewBus creates a bus with the given buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[BusEventType][]chan BusEvent),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for one event type. The subscriber runs
// in its own goroutine; panics inside it are recovered so an observer bug
// cannot take the bus down. Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType BusEventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan BusEvent, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						// Observer panics must not disrupt the bus.
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of the given type. Sends are
// non-blocking; if a subscriber's channel is full the event is dropped for
// that subscriber.
func (b *Bus) Publish(eventType BusEventType, runID string, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := BusEvent{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Channel full, drop rather than block the publisher.
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
