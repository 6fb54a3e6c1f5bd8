// Package notify carries user-facing advisories and queue-changed events
// from the sync engine to whatever status surface is observing it.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level classifies an advisory for display purposes.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// EventType distinguishes the two event families the engine emits.
type EventType string

const (
	// EventQueueChanged signals observers to re-read the queue.
	EventQueueChanged EventType = "queue_changed"
	// EventAdvisory is a human-readable message (sync paused, n synced, ...).
	EventAdvisory EventType = "advisory"
)

// Event is one notification delivered to observers.
type Event struct {
	Type    EventType `json:"type"`
	Level   Level     `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier is the side-effect boundary the sync engine talks to.
type Notifier interface {
	// QueueChanged tells observers the queue contents changed.
	QueueChanged()

	// Advise surfaces a user-facing message.
	Advise(level Level, message string)
}

// Bus is an in-process Notifier that fans events out to subscribers and
// mirrors advisories to the log. Slow subscribers drop events rather than
// blocking the sync pass.
type Bus struct {
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates a new Bus.
func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers an observer. The returned cancel func must be called
// to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// QueueChanged tells observers the queue contents changed.
func (b *Bus) QueueChanged() {
	b.publish(Event{Type: EventQueueChanged, At: time.Now()})
}

// Advise surfaces a user-facing message.
func (b *Bus) Advise(level Level, message string) {
	entry := b.logger.WithField("advisory", level)
	switch level {
	case LevelError:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	b.publish(Event{Type: EventAdvisory, Level: level, Message: message, At: time.Now()})
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
