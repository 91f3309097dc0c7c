// Package eventbus routes coordination events (device changes, discovery
// progress, schedule triggers) to subscribers through a bounded worker pool.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType identifies what happened.
type EventType string

const (
	// EventTypeDeviceChanged fires after a registry record mutates (state
	// write, refresh, upsert).
	EventTypeDeviceChanged EventType = "device_changed"
	// EventTypeDeviceDiscovered fires once per device found during a sweep.
	EventTypeDeviceDiscovered EventType = "device_discovered"
	// EventTypeDiscoveryFinished fires when a discovery sweep completes.
	EventTypeDiscoveryFinished EventType = "discovery_finished"
	// EventTypeScheduleTriggered fires when a schedule's actions were run.
	EventTypeScheduleTriggered EventType = "schedule_triggered"
	// EventTypeScheduleDue fires for schedules about to trigger within the
	// next minute; for notification purposes only.
	EventTypeScheduleDue EventType = "schedule_due"
)

const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event carries an event type plus a free-form payload.
type Event struct {
	Type EventType
	Data map[string]interface{}
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// Worker pool
	workQueue chan work
	wg        sync.WaitGroup

	// closeMu orders publishers against shutdown: the queue is only closed
	// under the write lock, and every send happens under the read lock, so
	// a publisher can never send on a closed channel.
	closeMu sync.RWMutex
	closed  bool
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
	}

	// Start worker pool
	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or the bus is closed, events are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	for _, handler := range handlers {
		select {
		case b.workQueue <- work{event: event, handler: handler}:
			// Successfully queued
		default:
			// Queue full - drop event with warning
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// PublishDeviceChanged publishes a device mutation with its identity and the
// merged fields.
func (b *Bus) PublishDeviceChanged(proto, deviceID string, changed map[string]interface{}) {
	b.Publish(Event{
		Type: EventTypeDeviceChanged,
		Data: map[string]interface{}{
			"protocol":  proto,
			"device_id": deviceID,
			"changed":   changed,
		},
	})
}

// Close shuts down the worker pool gracefully and is safe to call more than
// once. The queue is closed under the write lock, after any in-flight
// publisher has released the read lock.
func (b *Bus) Close(ctx context.Context) {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.workQueue)
	}
	b.closeMu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]Handler)
}
