package service

import (
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

type EventHandler func(models.Event)

type subscription struct {
	id      uint64
	handler EventHandler
	types   map[models.EventType]struct{}
}

// EventBus is a per-rotator publish/subscribe hub. Handlers run synchronously on the publisher's goroutine.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *logrus.Logger
}

func NewEventBus(logger *logrus.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe registers handler for the given types, or for every event when none are given.
// The returned func unsubscribes and is safe to call more than once.
func (b *EventBus) Subscribe(handler EventHandler, types ...models.EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() { b.unsubscribe(id) }
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]EventHandler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types != nil {
			if _, ok := s.types[event.Type]; !ok {
				continue
			}
		}
		targets = append(targets, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(h, event)
	}
}

func (b *EventBus) deliver(h EventHandler, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("event", event.Type).Errorf("Event handler panicked: %v", r)
		}
	}()
	h(event)
}

func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
