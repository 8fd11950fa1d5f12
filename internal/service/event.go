package service

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// System events
	EventTypeServiceStarted EventType = "service.started"
	EventTypeServiceStopped EventType = "service.stopped"
	EventTypeServiceError   EventType = "service.error"

	// Camera lifecycle events
	EventTypeCameraStarted EventType = "camera.started"
	EventTypeCameraStopped EventType = "camera.stopped"
	EventTypeROIUpdated    EventType = "camera.roi_updated"

	// Alarm events
	EventTypeSessionStarted EventType = "alarm.session_started"
	EventTypeAlarmFired     EventType = "alarm.fired"
	EventTypeAlarmCleared   EventType = "alarm.cleared"

	// Stream events
	EventTypeStreamLost      EventType = "stream.lost"
	EventTypeStreamRecovered EventType = "stream.recovered"
)

// Event data keys
const (
	DataCameraID   = "camera_id"
	DataThreshold  = "threshold_seconds"
	DataLevel      = "level"
	DataContinuous = "continuous"
	DataPlayed     = "played"
	DataSession    = "session_seconds"
	DataError      = "error"
	DataService    = "service"
)

// Event represents an event in the system
type Event struct {
	Type      EventType
	Source    string // component that emitted the event
	Timestamp time.Time
	Data      map[string]interface{}
}

// EventBus provides inter-service communication via events
type EventBus struct {
	subscribers map[EventType][]chan Event
	all         []chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe subscribes to events of the given types
func (eb *EventBus) Subscribe(eventTypes ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	}
	return ch
}

// SubscribeAll subscribes to every event, including types first
// published after the call
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.all = append(eb.all, ch)
	return ch
}

// Publish publishes an event to all subscribers without blocking; a
// subscriber whose buffer is full misses the event
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
		}
	}
	for _, sub := range eb.all {
		select {
		case sub <- event:
		default:
		}
	}
}

// Unsubscribe removes a subscription and closes its channel
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	var found chan Event
	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				found = sub
				break
			}
		}
	}
	for i, sub := range eb.all {
		if sub == ch {
			eb.all = append(eb.all[:i:i], eb.all[i+1:]...)
			found = sub
			break
		}
	}
	if found != nil {
		close(found)
	}
}

// Close closes all subscriptions; later publishes are dropped
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	seen := make(map[chan Event]bool)
	for eventType, subs := range eb.subscribers {
		for _, sub := range subs {
			seen[sub] = true
		}
		delete(eb.subscribers, eventType)
	}
	for _, sub := range eb.all {
		seen[sub] = true
	}
	eb.all = nil
	for sub := range seen {
		close(sub)
	}
}
