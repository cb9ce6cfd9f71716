package server

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushqd/pkg/eval"
	"github.com/crystal-mush/mushqd/pkg/events"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// TransportType identifies the kind of transport a Descriptor uses.
type TransportType int

const (
	TransportTCP       TransportType = iota // traditional telnet/TCP
	TransportWebSocket                      // WebSocket (JSON events)
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // pre-login: awaiting connect/create
	ConnConnected                  // logged in as a player
)

// Descriptor represents a single client connection. It implements
// events.Subscriber so it can receive events from the bus.
type Descriptor struct {
	ID        int
	Conn      net.Conn
	State     ConnState
	Player    gamedb.DBRef
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time
	Retries   int
	CmdCount  int
	BytesSent int
	BytesRecv int
	Transport TransportType

	// Regs carries the active register set for commands dispatched on
	// this descriptor, so requeued work sees the values current at
	// enqueue time. Nil for an interactive session with no registers.
	Regs *eval.RegisterData

	// SendFunc overrides the default Send behavior (used by the
	// WebSocket transport). Nil means plain TCP writes.
	SendFunc func(msg string)
	// ReceiveFunc overrides the default event-to-text path for
	// structured transports.
	ReceiveFunc func(ev events.Event)

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		State:    ConnLogin,
		Player:   gamedb.Nothing,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  3,
	}
}

// Send writes a line to the client connection.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// Telnet lines end with \r\n
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
}

// SendNoNewline writes a string without appending a newline.
func (d *Descriptor) SendNoNewline(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.Conn != nil {
		d.Conn.Close()
	}
}

// IsClosed reports whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Receive implements events.Subscriber: structured transports get the
// event, everyone else gets its text rendering.
func (d *Descriptor) Receive(ev events.Event) {
	if d.ReceiveFunc != nil {
		d.ReceiveFunc(ev)
		return
	}
	if ev.Text != "" {
		d.Send(ev.Text)
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool {
	return d.IsClosed()
}

// ConnManager tracks live descriptors and the player index.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	nextID      int
	byPlayer    map[gamedb.DBRef][]*Descriptor // multi-login allowed
	EventBus    *events.Bus
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		byPlayer:    make(map[gamedb.DBRef][]*Descriptor),
		nextID:      1,
	}
}

// NextID hands out a fresh descriptor id.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// Add registers a new descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor and unsubscribes it from the event bus.
func (cm *ConnManager) Remove(d *Descriptor) {
	if cm.EventBus != nil && d.Player != gamedb.Nothing {
		cm.EventBus.Unsubscribe(d.Player, d)
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
	if d.Player != gamedb.Nothing {
		subs := cm.byPlayer[d.Player]
		for i, s := range subs {
			if s == d {
				cm.byPlayer[d.Player] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(cm.byPlayer[d.Player]) == 0 {
			delete(cm.byPlayer, d.Player)
		}
	}
}

// BindPlayer associates a descriptor with a logged-in player and
// subscribes it to the player's events.
func (cm *ConnManager) BindPlayer(d *Descriptor, player gamedb.DBRef) {
	cm.mu.Lock()
	d.Player = player
	d.State = ConnConnected
	cm.byPlayer[player] = append(cm.byPlayer[player], d)
	cm.mu.Unlock()
	if cm.EventBus != nil {
		cm.EventBus.Subscribe(player, d)
	}
}

// GetByPlayer returns all descriptors logged in as player.
func (cm *ConnManager) GetByPlayer(player gamedb.DBRef) []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Descriptor, len(cm.byPlayer[player]))
	copy(out, cm.byPlayer[player])
	return out
}

// IsConnected reports whether the player has at least one live descriptor.
func (cm *ConnManager) IsConnected(player gamedb.DBRef) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byPlayer[player]) > 0
}

// ConnectedPlayers returns all connected player dbrefs.
func (cm *ConnManager) ConnectedPlayers() []gamedb.DBRef {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]gamedb.DBRef, 0, len(cm.byPlayer))
	for p := range cm.byPlayer {
		out = append(out, p)
	}
	return out
}

// AllDescriptors returns every live descriptor.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		out = append(out, d)
	}
	return out
}
