package event

import (
	"time"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type,
	// one of the protocol.EventType values.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Record is one entry in a team's event queue.
type Record struct {
	ID      string             `json:"id"`
	TS      time.Time          `json:"ts"`
	Team    string             `json:"team"`
	Type    protocol.EventType `json:"type"`
	Payload map[string]any     `json:"payload,omitempty"`
}

func (r Record) EventType() string    { return string(r.Type) }
func (r Record) Timestamp() time.Time { return r.TS }

// NewRecord creates a Record stamped with the current time.
// The ID is assigned when the record is appended to a Queue.
func NewRecord(team string, typ protocol.EventType, payload map[string]any) Record {
	return Record{
		TS:      time.Now().UTC(),
		Team:    team,
		Type:    typ,
		Payload: payload,
	}
}
