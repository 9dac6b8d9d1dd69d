package protocol

import (
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
)

// TeamVersion is the current on-disk team config version.
const TeamVersion = 1

// Team is the durable root record of a team.
type Team struct {
	Version   int       `json:"version"`
	TeamName  string    `json:"team_name"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one named identity within a team.
type Member struct {
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	ToolPolicy ToolPolicy `json:"tool_policy"`
}

// IsLead reports whether the member is the team coordinator.
func (m Member) IsLead() bool {
	return m.Role == RoleLead
}

// Member returns the member with the given name.
func (t *Team) Member(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// HasMember reports whether name belongs to the team.
func (t *Team) HasMember(name string) bool {
	_, ok := t.Member(name)
	return ok
}

// MemberNames returns member names in team order.
func (t *Team) MemberNames() []string {
	names := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		names = append(names, m.Name)
	}
	return names
}

// Lead returns the coordinator's name, or "" if the team has none.
func (t *Team) Lead() string {
	for _, m := range t.Members {
		if m.IsLead() {
			return m.Name
		}
	}
	return ""
}

// Workers returns every non-coordinator member.
func (t *Team) Workers() []Member {
	var out []Member
	for _, m := range t.Members {
		if !m.IsLead() {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	out := *t
	out.Members = make([]Member, len(t.Members))
	for i, m := range t.Members {
		m.ToolPolicy = m.ToolPolicy.clone()
		out.Members[i] = m
	}
	return &out
}

// NormalizeMember sanitizes the name, defaults the role and applies the
// mandatory denylist entries.
func NormalizeMember(m Member) (Member, error) {
	name, err := SanitizeName(m.Name)
	if err != nil {
		return Member{}, err
	}
	m.Name = name
	if m.Role == "" {
		m.Role = RoleWorker
	}
	if !m.Role.IsValid() {
		return Member{}, errors.NewValidationErrorf("invalid role %q for member %s", m.Role, name).
			WithField("role").WithValue(string(m.Role))
	}
	m.ToolPolicy = m.ToolPolicy.Normalized()
	return m, nil
}

// Message is one delivered copy of a message to a single recipient.
type Message struct {
	MessageID   string        `json:"message_id"`
	TeamName    string        `json:"team_name"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Text        string        `json:"text"`
	Type        MessageType   `json:"type"`
	Summary     string        `json:"summary,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	Approved    *bool         `json:"approved,omitempty"`
	Feedback    string        `json:"feedback,omitempty"`
	Status      MessageStatus `json:"status"`
	ProcessedBy string        `json:"processed_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

// Payload keys linking a work item back to what produced it.
const (
	PayloadBoardTaskID     = "board_task_id"
	PayloadSourceMessageID = "source_message_id"
	PayloadMessageType     = "message_type"
	PayloadApprovalID      = "approval_request_id"
)

// WorkItem is a single unit of instruction dispatched to one teammate.
type WorkItem struct {
	WorkID      string         `json:"work_id"`
	TeamName    string         `json:"team_name"`
	Owner       string         `json:"owner"`
	Title       string         `json:"title"`
	Instruction string         `json:"instruction"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      WorkStatus     `json:"status"`
	Attempt     int            `json:"attempt"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// PayloadString returns a string payload value, or "".
func (w *WorkItem) PayloadString(key string) string {
	if w.Payload == nil {
		return ""
	}
	switch v := w.Payload[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// BoardTaskID returns the linked board task, or "" for free-standing work.
func (w *WorkItem) BoardTaskID() string {
	return w.PayloadString(PayloadBoardTaskID)
}

// Task is a board task with its dependency edges.
type Task struct {
	ID          string     `json:"id"`
	TeamName    string     `json:"team_name"`
	Subject     string     `json:"subject"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Owner       string     `json:"owner"`
	BlockedBy   []string   `json:"blocked_by"`
	Blocks      []string   `json:"blocks"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsClaimable reports whether the task can be self-assigned.
func (t *Task) IsClaimable() bool {
	return t.Status == TaskPending && t.Owner == "" && len(t.BlockedBy) == 0
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	out.BlockedBy = slices.Clone(t.BlockedBy)
	out.Blocks = slices.Clone(t.Blocks)
	return &out
}

// ApprovalRequest is a pending or decided plan approval for one board task.
type ApprovalRequest struct {
	RequestID  string         `json:"request_id"`
	TeamName   string         `json:"team_name"`
	Teammate   string         `json:"teammate"`
	TaskID     string         `json:"task_id"`
	Subject    string         `json:"subject"`
	Status     ApprovalStatus `json:"status"`
	Feedback   string         `json:"feedback,omitempty"`
	Approved   bool           `json:"approved"`
	Dispatched bool           `json:"dispatched"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
