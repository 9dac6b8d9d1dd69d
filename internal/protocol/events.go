package protocol

// EventType names an entry in a team's event queue.
type EventType string

const (
	EventTeamCreated          EventType = "team_created"
	EventTeamDeleted          EventType = "team_deleted"
	EventTeammateSpawned      EventType = "teammate_spawned"
	EventWorkerStarted        EventType = "worker_started"
	EventWorkerStopped        EventType = "worker_stopped"
	EventMessageSent          EventType = "message_sent"
	EventMessageAck           EventType = "message_ack"
	EventShutdownRequest      EventType = "shutdown_request"
	EventShutdownResponse     EventType = "shutdown_response"
	EventPlanApprovalRequest  EventType = "plan_approval_request"
	EventPlanApprovalResponse EventType = "plan_approval_response"
	EventWorkItemAssigned     EventType = "work_item_assigned"
	EventWorkItemStarted      EventType = "work_item_started"
	EventWorkItemCompleted    EventType = "work_item_completed"
	EventWorkItemFailed       EventType = "work_item_failed"
	EventWorkItemRequeued     EventType = "work_item_requeued"
	EventTaskCreated          EventType = "task_created"
	EventTaskClaimed          EventType = "task_claimed"
	EventTaskUpdated          EventType = "task_updated"
	EventStateImported        EventType = "state_imported"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// SendEventType maps a message type to the event emitted when it is delivered.
func SendEventType(t MessageType) EventType {
	switch t {
	case MessageShutdownRequest:
		return EventShutdownRequest
	case MessageShutdownResponse:
		return EventShutdownResponse
	case MessagePlanApprovalResponse:
		return EventPlanApprovalResponse
	default:
		return EventMessageSent
	}
}
