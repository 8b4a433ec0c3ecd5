package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const defaultBuffer = 64

// Hub fans change events out to in-process subscribers
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	log    *zap.Logger
}

// NewHub creates a Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: defaultBuffer,
		log:    log,
	}
}

// Subscription receives events for the tables it subscribed to, or all tables when none were named
type Subscription struct {
	C <-chan Event

	ch     chan Event
	id     uint64
	tables map[string]struct{}
	hub    *Hub
	once   sync.Once
}

// Subscribe registers a subscriber. Close must be called when the consumer goes away.
func (h *Hub) Subscribe(tables ...string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	if len(tables) > 0 {
		sub.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			sub.tables[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()

	return sub
}

// Close unregisters the subscription and closes its channel. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (s *Subscription) wants(table string) bool {
	if s.tables == nil {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

// Publish delivers ev to every interested subscriber without blocking.
// A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(ev.Table) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn("dropping change event for slow subscriber",
				zap.Uint64("subscriber", sub.id),
				zap.String("table", ev.Table),
				zap.String("event", string(ev.EventType)),
			)
		}
	}
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
