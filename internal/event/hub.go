package event

import (
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Emitter records a team event.
type Emitter interface {
	Emit(team string, typ protocol.EventType, payload map[string]any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(team string, typ protocol.EventType, payload map[string]any)

// Emit calls f.
func (f EmitterFunc) Emit(team string, typ protocol.EventType, payload map[string]any) {
	f(team, typ, payload)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = EmitterFunc(func(string, protocol.EventType, map[string]any) {})

// Hub queues every emitted event for its team and publishes it on a Bus.
type Hub struct {
	queue  *Queue
	bus    *Bus
	logger *logging.Logger
}

// NewHub creates a Hub whose per-team queues hold at most maxQueue records.
func NewHub(maxQueue int, logger *logging.Logger) *Hub {
	logger = logging.OrNop(logger)
	return &Hub{
		queue:  NewQueue(maxQueue),
		bus:    NewBus(WithBusLogger(logger)),
		logger: logger.WithComponent("events"),
	}
}

// Emit appends the event to the team queue, then publishes it synchronously.
func (h *Hub) Emit(team string, typ protocol.EventType, payload map[string]any) {
	rec := h.queue.Append(NewRecord(team, typ, payload))
	h.logger.Debug("event", "team", team, "type", string(typ), "id", rec.ID)
	h.bus.Publish(rec)
}

// Drain returns and clears the team's queued events.
func (h *Hub) Drain(team string) []Record {
	return h.queue.Drain(team)
}

// Queue returns the underlying queue.
func (h *Hub) Queue() *Queue {
	return h.queue
}

// Bus returns the bus events are published on.
func (h *Hub) Bus() *Bus {
	return h.bus
}
