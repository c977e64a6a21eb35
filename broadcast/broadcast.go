// broadcast/broadcast.go
package broadcast

import (
	"sync"

	"github.com/wfunc/blackjackserver/logger"
)

// 广播接口
type Broadcaster interface {
	Publish(roomID string, event Event)
}

// Subscriber is one connected observer of a room. Its channel is
// private to it; a subscriber that cannot keep up loses events rather
// than blocking emission for anyone else.
type Subscriber struct {
	roomID string
	ch     chan Event
	once   sync.Once
}

// Events returns the subscriber's receive channel. The channel is
// closed on Unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// RoomID returns the room this subscriber observes.
func (s *Subscriber) RoomID() string {
	return s.roomID
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

type roomHub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// RoomBroadcaster fans events out to every current observer of a room,
// preserving per-room emission order. Cross-room ordering is
// unconstrained.
type RoomBroadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]*roomHub
	buffer int

	// OnDrop is invoked when a slow subscriber loses an event.
	OnDrop func(roomID string)
}

func NewRoomBroadcaster(buffer int) *RoomBroadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &RoomBroadcaster{
		rooms:  make(map[string]*roomHub),
		buffer: buffer,
	}
}

// Subscribe registers a new observer for a room. Subscribing is
// non-blocking and never fails; a reconnecting client receives no
// replay and should re-sync via a plain state read.
func (b *RoomBroadcaster) Subscribe(roomID string) *Subscriber {
	sub := &Subscriber{
		roomID: roomID,
		ch:     make(chan Event, b.buffer),
	}

	b.mu.Lock()
	hub, exists := b.rooms[roomID]
	if !exists {
		hub = &roomHub{subs: make(map[*Subscriber]struct{})}
		b.rooms[roomID] = hub
	}
	b.mu.Unlock()

	hub.mu.Lock()
	hub.subs[sub] = struct{}{}
	hub.mu.Unlock()

	return sub
}

// Unsubscribe releases the observer's resources. Safe to call more
// than once.
func (b *RoomBroadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.RLock()
	hub, exists := b.rooms[sub.roomID]
	b.mu.RUnlock()

	if exists {
		hub.mu.Lock()
		delete(hub.subs, sub)
		hub.mu.Unlock()
	}
	sub.close()
}

// Publish delivers an event to every subscriber of a room. The send is
// non-blocking per subscriber: a full buffer drops the event for that
// subscriber only.
func (b *RoomBroadcaster) Publish(roomID string, event Event) {
	b.mu.RLock()
	hub, exists := b.rooms[roomID]
	b.mu.RUnlock()
	if !exists {
		return
	}

	// The hub lock serializes concurrent publishers so every
	// subscriber sees one room's events in emission order.
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for sub := range hub.subs {
		select {
		case sub.ch <- event:
		default:
			if b.OnDrop != nil {
				b.OnDrop(roomID)
			}
			logger.Log.Warnf("Dropping %s event for slow subscriber in room %s", event.Type, roomID)
		}
	}
}

// CloseRoom drops every subscriber of a room, closing their channels.
func (b *RoomBroadcaster) CloseRoom(roomID string) {
	b.mu.Lock()
	hub, exists := b.rooms[roomID]
	delete(b.rooms, roomID)
	b.mu.Unlock()
	if !exists {
		return
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for sub := range hub.subs {
		sub.close()
		delete(hub.subs, sub)
	}
}

// SubscriberCount reports the current number of observers of a room.
func (b *RoomBroadcaster) SubscriberCount(roomID string) int {
	b.mu.RLock()
	hub, exists := b.rooms[roomID]
	b.mu.RUnlock()
	if !exists {
		return 0
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.subs)
}
