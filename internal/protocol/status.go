package protocol

// MessageType identifies the kind of message carried by the router.
type MessageType string

const (
	// MessageDirect is a point-to-point message to one teammate.
	MessageDirect MessageType = "message"
	// MessageBroadcast is expanded into one message per other member.
	MessageBroadcast MessageType = "broadcast"
	// MessageShutdownRequest asks the recipient to stop its worker.
	MessageShutdownRequest MessageType = "shutdown_request"
	// MessageShutdownResponse acknowledges a shutdown request.
	MessageShutdownResponse MessageType = "shutdown_response"
	// MessagePlanApprovalResponse approves or rejects a plan approval request.
	MessagePlanApprovalResponse MessageType = "plan_approval_response"
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	return string(t)
}

// IsValid returns true if this is a recognized message type.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageDirect, MessageBroadcast, MessageShutdownRequest,
		MessageShutdownResponse, MessagePlanApprovalResponse:
		return true
	default:
		return false
	}
}

// RequiresSummary reports whether messages of this type must carry a summary.
func (t MessageType) RequiresSummary() bool {
	return t == MessageDirect || t == MessageBroadcast
}

// RequiresRequestID reports whether messages of this type answer an earlier request.
func (t MessageType) RequiresRequestID() bool {
	return t == MessageShutdownResponse || t == MessagePlanApprovalResponse
}

// MessageStatus is the delivery state of a single message.
// It only ever moves forward: pending, delivered, processed.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageProcessed MessageStatus = "processed"
)

func (s MessageStatus) rank() int {
	switch s {
	case MessagePending:
		return 1
	case MessageDelivered:
		return 2
	case MessageProcessed:
		return 3
	default:
		return 0
	}
}

// String returns the string representation of the message status.
func (s MessageStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized message status.
func (s MessageStatus) IsValid() bool {
	return s.rank() > 0
}

// CanTransition reports whether a message may move from s to next.
// Only strictly forward moves are allowed.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	return s.IsValid() && next.IsValid() && next.rank() > s.rank()
}

// WorkStatus is the lifecycle state of a work item.
type WorkStatus string

const (
	WorkQueued    WorkStatus = "queued"
	WorkRunning   WorkStatus = "running"
	WorkSucceeded WorkStatus = "succeeded"
	WorkFailed    WorkStatus = "failed"
	WorkCanceled  WorkStatus = "canceled"
)

// String returns the string representation of the work status.
func (s WorkStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized work status.
func (s WorkStatus) IsValid() bool {
	switch s {
	case WorkQueued, WorkRunning, WorkSucceeded, WorkFailed, WorkCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if this status represents a final state.
func (s WorkStatus) IsTerminal() bool {
	return s == WorkSucceeded || s == WorkFailed || s == WorkCanceled
}

// AllWorkStatuses lists every work status in lifecycle order.
func AllWorkStatuses() []WorkStatus {
	return []WorkStatus{WorkQueued, WorkRunning, WorkSucceeded, WorkFailed, WorkCanceled}
}

// TaskStatus is the lifecycle state of a board task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCanceled   TaskStatus = "canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if this status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCanceled
}

// AllTaskStatuses lists every task status in lifecycle order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskCanceled}
}

// ApprovalStatus is the decision state of a plan approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// String returns the string representation of the approval status.
func (s ApprovalStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized approval status.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// WorkerState is the lifecycle state of a teammate worker.
type WorkerState string

const (
	WorkerStarting WorkerState = "starting"
	WorkerActive   WorkerState = "active"
	WorkerIdle     WorkerState = "idle"
	WorkerStopped  WorkerState = "stopped"
)

// String returns the string representation of the worker state.
func (s WorkerState) String() string {
	return string(s)
}

// IsLive returns true while the worker goroutine is still running.
func (s WorkerState) IsLive() bool {
	return s == WorkerStarting || s == WorkerActive || s == WorkerIdle
}
