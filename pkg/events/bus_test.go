package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := gamedb.DBRef(1)
	bus.Subscribe(player, sub)

	ev := Event{
		Type:   EvSay,
		Player: player,
		Source: player,
		Text:   "Hello world",
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Text)
	}
	if events[0].Type != EvSay {
		t.Errorf("expected type EvSay, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	player := gamedb.DBRef(5)
	ev := Event{Type: EvQueue, Player: player, Text: "queued PID 3"}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Type != EvQueue {
		t.Errorf("expected type EvQueue, got %v", events[0].Type)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	player := gamedb.DBRef(2)

	bus.Subscribe(player, sub)
	bus.Unsubscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "gone"})

	if len(sub.Events()) != 0 {
		t.Error("unsubscribed subscriber still received events")
	}
}

func TestBusClosedSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(3)

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "dropped"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber received events")
	}

	bus.Prune()
	bus.mu.RLock()
	_, present := bus.subscribers[player]
	bus.mu.RUnlock()
	if present {
		t.Error("prune left the closed subscriber registered")
	}
}

func TestBusEmitToAll(t *testing.T) {
	bus := NewBus()
	a, b := &mockSubscriber{}, &mockSubscriber{}
	bus.Subscribe(gamedb.DBRef(1), a)
	bus.Subscribe(gamedb.DBRef(2), b)

	bus.EmitToAll(Event{Type: EvWall, Text: "server going down"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("wall not delivered to everyone: %d/%d", len(a.Events()), len(b.Events()))
	}
	if a.Events()[0].Player != gamedb.DBRef(1) || b.Events()[0].Player != gamedb.DBRef(2) {
		t.Error("wall events should carry each recipient")
	}
}
