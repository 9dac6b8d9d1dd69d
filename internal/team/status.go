package team

import (
	"time"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// RecentMessageLimit is how many messages GetStatus reports.
const RecentMessageLimit = 10

// MemberStatus is one member as seen by GetStatus.
type MemberStatus struct {
	Name                string               `json:"name"`
	Role                protocol.Role        `json:"role"`
	RequirePlanApproval bool                 `json:"require_plan_approval"`
	Worker              protocol.WorkerState `json:"worker"`
	LastActive          *time.Time           `json:"last_active,omitempty"`
}

// TeamStatus aggregates what a team is doing right now.
type TeamStatus struct {
	Team           string                          `json:"team"`
	Lead           string                          `json:"lead"`
	Members        []MemberStatus                  `json:"members"`
	Messages       map[protocol.MessageStatus]int  `json:"messages"`
	RecentMessages []protocol.Message              `json:"recent_messages"`
	Work           map[protocol.WorkStatus]int     `json:"work"`
	Tasks          map[protocol.TaskStatus]int     `json:"tasks"`
	Approvals      map[protocol.ApprovalStatus]int `json:"approvals"`
	PendingEvents  int                             `json:"pending_events"`
}

// GetStatus reports member worker states and message, work, task and
// approval counts for team.
func (m *Manager) GetStatus(team string) (TeamStatus, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return TeamStatus{}, err
	}
	work, err := m.workCounts(t.TeamName)
	if err != nil {
		return TeamStatus{}, err
	}
	tasks, err := m.board.Counts(t.TeamName)
	if err != nil {
		return TeamStatus{}, err
	}

	st := TeamStatus{
		Team:           t.TeamName,
		Lead:           t.Lead(),
		Messages:       m.router.Counts(t.TeamName),
		RecentMessages: m.router.Recent(t.TeamName, RecentMessageLimit),
		Work:           work,
		Tasks:          tasks,
		Approvals:      m.gate.Counts(t.TeamName),
		PendingEvents:  m.events.Queue().Len(t.TeamName),
	}
	for _, mem := range t.Members {
		ms := MemberStatus{
			Name:                mem.Name,
			Role:                mem.Role,
			RequirePlanApproval: mem.ToolPolicy.RequiresPlanApproval(),
			Worker:              protocol.WorkerStopped,
		}
		if ws, ok := m.sup.Get(t.TeamName, mem.Name); ok {
			ms.Worker = ws.State
			last := ws.LastActive
			ms.LastActive = &last
		}
		st.Members = append(st.Members, ms)
	}
	return st, nil
}

func (m *Manager) workCounts(team string) (map[protocol.WorkStatus]int, error) {
	items, err := m.store.ListWorkItems(team, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[protocol.WorkStatus]int, 5)
	for _, s := range protocol.AllWorkStatuses() {
		counts[s] = 0
	}
	for _, it := range items {
		counts[it.Status]++
	}
	return counts, nil
}
