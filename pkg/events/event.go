// Package events is the pub/sub layer between game logic and transports.
// Game code emits structured events; each subscriber (telnet descriptor,
// websocket console, audit logger) encodes them for its own wire.
package events

import "github.com/crystal-mush/mushqd/pkg/gamedb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // raw text, universal fallback
	EvSay                         // speech
	EvConnect                     // player connected
	EvDisconnect                  // player disconnected
	EvWall                        // broadcast to everyone
	EvQueue                       // queue activity (enqueue, halt, runaway)
	EvPrompt                      // prompt/status update
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvWall:
		return "wall"
	case EvQueue:
		return "queue"
	case EvPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Event is a structured game event. Telnet subscribers render Text;
// websocket and logging subscribers use the structured fields.
type Event struct {
	Type   EventType
	Player gamedb.DBRef   // recipient (Nothing for broadcast)
	Source gamedb.DBRef   // who generated the event
	Text   string         // pre-formatted text
	Data   map[string]any // structured payload for JSON clients
}
