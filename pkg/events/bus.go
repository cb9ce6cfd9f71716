package events

import (
	"sync"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-player pub/sub event bus with support for global
// subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gamedb.DBRef][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gamedb.DBRef][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific player's events.
func (b *Bus) Subscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[player] = append(b.subscribers[player], sub)
}

// Unsubscribe removes a subscriber for a specific player.
func (b *Bus) Unsubscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[player]
	for i, s := range subs {
		if s == sub {
			b.subscribers[player] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[player]) == 0 {
		delete(b.subscribers, player)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the player named in ev.Player and to all global
// subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Player]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToPlayer sends an event to a specific player, overriding ev.Player.
func (b *Bus) EmitToPlayer(player gamedb.DBRef, ev Event) {
	ev.Player = player
	b.Emit(ev)
}

// EmitToAll sends an event to every player with a subscriber, plus the
// globals once.
func (b *Bus) EmitToAll(ev Event) {
	b.mu.RLock()
	players := make([]gamedb.DBRef, 0, len(b.subscribers))
	for p := range b.subscribers {
		players = append(players, p)
	}
	b.mu.RUnlock()

	for _, p := range players {
		pev := ev
		pev.Player = p
		b.mu.RLock()
		subs := b.subscribers[p]
		b.mu.RUnlock()
		for _, s := range subs {
			if !s.Closed() {
				s.Receive(pev)
			}
		}
	}

	b.mu.RLock()
	globals := b.global
	b.mu.RUnlock()
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Prune drops closed subscribers so long-lived buses do not accumulate
// dead descriptors.
func (b *Bus) Prune() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p, subs := range b.subscribers {
		kept := subs[:0]
		for _, s := range subs {
			if !s.Closed() {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subscribers, p)
		} else {
			b.subscribers[p] = kept
		}
	}
	kept := b.global[:0]
	for _, s := range b.global {
		if !s.Closed() {
			kept = append(kept, s)
		}
	}
	b.global = kept
}
