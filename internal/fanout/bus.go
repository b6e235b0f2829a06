// Package fanout delivers live score and chat events to subscribers grouped
// in rooms. Delivery is best effort: a subscriber whose buffer is full misses
// the event, and nothing is replayed after a reconnect.
package fanout

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/metrics"
)

// Publisher sends an event to every subscriber of its room.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type conn struct {
	id    string
	ch    chan Event
	rooms map[Room]struct{}
}

type room struct {
	// mu serializes publishers so events reach each subscriber in publish order.
	mu   sync.Mutex
	subs map[string]*conn
}

type Bus struct {
	mu     sync.RWMutex
	rooms  map[Room]*room
	conns  map[string]*conn
	buffer int
	logger *zap.SugaredLogger
}

// NewBus returns a bus whose per-connection streams hold up to buffer events.
func NewBus(buffer int, logger *zap.SugaredLogger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		rooms:  make(map[Room]*room),
		conns:  make(map[string]*conn),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe adds the connection to the room and returns the connection's
// stream. All rooms of one connection share the stream; it is closed by
// Disconnect.
func (b *Bus) Subscribe(connID string, r Room) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[connID]
	if !ok {
		c = &conn{id: connID, ch: make(chan Event, b.buffer), rooms: make(map[Room]struct{})}
		b.conns[connID] = c
	}
	rm, ok := b.rooms[r]
	if !ok {
		rm = &room{subs: make(map[string]*conn)}
		b.rooms[r] = rm
	}
	rm.subs[connID] = c
	c.rooms[r] = struct{}{}
	b.logger.Debugw("subscribed", "conn", connID, "room", r)
	return c.ch
}

// Unsubscribe removes the connection from one room.
func (b *Bus) Unsubscribe(connID string, r Room) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.conns[connID]; ok {
		delete(c.rooms, r)
	}
	b.leave(connID, r)
}

func (b *Bus) leave(connID string, r Room) {
	rm, ok := b.rooms[r]
	if !ok {
		return
	}
	delete(rm.subs, connID)
	if len(rm.subs) == 0 {
		delete(b.rooms, r)
	}
}

// Disconnect removes the connection from every room and closes its stream.
func (b *Bus) Disconnect(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[connID]
	if !ok {
		return
	}
	for r := range c.rooms {
		b.leave(connID, r)
	}
	delete(b.conns, connID)
	close(c.ch)
	b.logger.Debugw("disconnected", "conn", connID)
}

// Publish delivers ev to the current subscribers of ev.Room without blocking.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.Deliver(ev)
	return nil
}

// Deliver is Publish returning how many subscribers received the event.
func (b *Bus) Deliver(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rm, ok := b.rooms[ev.Room]
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delivered := 0
	for id, c := range rm.subs {
		select {
		case c.ch <- ev:
			delivered++
		default:
			metrics.FanoutDropped.WithLabelValues("subscriber_full").Inc()
			b.logger.Warnw("subscriber buffer full, event dropped", "conn", id, "room", ev.Room, "type", ev.Type)
		}
	}
	metrics.FanoutDelivered.Add(float64(delivered))
	return delivered
}

// Rooms lists the rooms a connection belongs to.
func (b *Bus) Rooms(connID string) []Room {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.conns[connID]
	if !ok {
		return nil
	}
	out := make([]Room, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// Subscribers returns the number of connections in the room.
func (b *Bus) Subscribers(r Room) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rm, ok := b.rooms[r]; ok {
		return len(rm.subs)
	}
	return 0
}
