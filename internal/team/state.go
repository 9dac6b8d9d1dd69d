package team

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is the runtime picture of every team, carried across restarts.
// Durable state stays on disk; the snapshot records what was live.
type Snapshot struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Teams      []TeamSnapshot `json:"teams"`
}

// TeamSnapshot is one team within a Snapshot.
type TeamSnapshot struct {
	Team          string                          `json:"team"`
	Members       []string                        `json:"members"`
	ActiveWorkers []string                        `json:"active_workers"`
	IdleWorkers   []string                        `json:"idle_workers"`
	Messages      map[protocol.MessageStatus]int  `json:"messages"`
	Work          map[protocol.WorkStatus]int     `json:"work"`
	Tasks         map[protocol.TaskStatus]int     `json:"tasks"`
	Approvals     map[protocol.ApprovalStatus]int `json:"approvals"`
	// PendingApprovals lists undecided plan approvals. They are informational;
	// ImportState does not restore them.
	PendingApprovals []protocol.ApprovalRequest `json:"pending_approvals,omitempty"`
}

// ImportReport describes what ImportState recovered.
type ImportReport struct {
	Teams          []string            `json:"teams"`
	Missing        []string            `json:"missing,omitempty"`
	Requeued       map[string]int      `json:"requeued"`
	Released       map[string][]string `json:"released,omitempty"`
	WorkersStarted int                 `json:"workers_started"`
}

// ParseSnapshot decodes an exported snapshot. Empty or null input is an
// empty snapshot, so a session document without one still restores.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Snapshot{Version: SnapshotVersion}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, errors.NewValidationError("snapshot is not valid JSON").WithCause(err)
	}
	if snap.Version > SnapshotVersion {
		return nil, errors.NewValidationErrorf("snapshot version %d is newer than %d", snap.Version, SnapshotVersion).
			WithField("version").WithValue(snap.Version)
	}
	return &snap, nil
}

// ExportState snapshots every stored team.
func (m *Manager) ExportState() (*Snapshot, error) {
	names, err := m.store.ListTeams()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC(),
		Teams:      make([]TeamSnapshot, 0, len(names)),
	}
	for _, name := range names {
		st, err := m.GetStatus(name)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				continue // deleted mid-export
			}
			return nil, err
		}
		ts := TeamSnapshot{
			Team:          st.Team,
			ActiveWorkers: []string{},
			IdleWorkers:   []string{},
			Messages:      st.Messages,
			Work:          st.Work,
			Tasks:         st.Tasks,
			Approvals:     st.Approvals,
		}
		if pending := m.gate.List(st.Team, protocol.ApprovalPending); len(pending) > 0 {
			ts.PendingApprovals = pending
		}
		for _, ms := range st.Members {
			ts.Members = append(ts.Members, ms.Name)
			switch ms.Worker {
			case protocol.WorkerStarting, protocol.WorkerActive:
				ts.ActiveWorkers = append(ts.ActiveWorkers, ms.Name)
			case protocol.WorkerIdle:
				ts.IdleWorkers = append(ts.IdleWorkers, ms.Name)
			}
		}
		snap.Teams = append(snap.Teams, ts)
	}
	return snap, nil
}

// ImportState recovers every team found on disk or named in snap: running
// work items go back to queued, in_progress tasks nobody is working on go
// back to the board, and a worker is started for every non-lead member.
// Calling it again is harmless; a live worker is never started twice.
func (m *Manager) ImportState(ctx context.Context, snap *Snapshot) (ImportReport, error) {
	if snap == nil {
		snap = &Snapshot{Version: SnapshotVersion}
	}
	names, err := m.store.ListTeams()
	if err != nil {
		return ImportReport{}, err
	}
	for _, ts := range snap.Teams {
		if !slices.Contains(names, ts.Team) {
			names = append(names, ts.Team)
		}
	}
	slices.Sort(names)

	report := ImportReport{
		Teams:    []string{},
		Requeued: make(map[string]int),
		Released: make(map[string][]string),
	}
	for _, name := range names {
		t, err := m.loadTeam(name)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				report.Missing = append(report.Missing, name)
				continue
			}
			return report, err
		}

		// Items running under a live worker of this process are not lost.
		n, err := m.store.RequeueRunningExcept(ctx, t.TeamName, func(owner string) bool {
			return m.sup.IsLive(t.TeamName, owner)
		})
		if err != nil {
			return report, errors.Wrapf(err, "requeue running work for %s", t.TeamName)
		}
		released, err := m.releaseOrphanedTasks(ctx, t)
		if err != nil {
			return report, err
		}
		started := m.ensureWorkers(t)

		report.Teams = append(report.Teams, t.TeamName)
		report.Requeued[t.TeamName] = n
		if len(released) > 0 {
			report.Released[t.TeamName] = released
		}
		report.WorkersStarted += started

		m.emit(t.TeamName, protocol.EventStateImported, map[string]any{
			"requeued":        n,
			"released":        released,
			"workers_started": started,
		})
	}
	m.logger.Info("state imported",
		"teams", len(report.Teams), "missing", len(report.Missing), "workers_started", report.WorkersStarted)
	return report, nil
}

// releaseOrphanedTasks returns in_progress tasks to the board when no work
// item or approval request carries them and their worker owner is not live.
// Those are claims lost between the board and the work log. Tasks the lead
// holds are left alone.
func (m *Manager) releaseOrphanedTasks(ctx context.Context, t *protocol.Team) ([]string, error) {
	team := t.TeamName
	tasks, err := m.board.ListTasks(team, taskboard.TaskFilter{Status: protocol.TaskInProgress})
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	items, err := m.store.ListWorkItems(team, "")
	if err != nil {
		return nil, err
	}
	carried := make(map[string]bool)
	for _, it := range items {
		if it.Status == protocol.WorkQueued || it.Status == protocol.WorkRunning {
			if id := it.BoardTaskID(); id != "" {
				carried[id] = true
			}
		}
	}
	for _, req := range m.gate.List(team, "") {
		if req.Status == protocol.ApprovalPending || !req.Dispatched {
			carried[req.TaskID] = true
		}
	}

	var released []string
	for _, task := range tasks {
		if carried[task.ID] || m.sup.IsLive(team, task.Owner) {
			continue
		}
		if owner, ok := t.Member(task.Owner); ok && owner.IsLead() {
			continue
		}
		if _, err := m.board.ReleaseTask(ctx, team, task.ID); err != nil {
			if errors.CodeOf(err) == errors.CodeConflict {
				continue
			}
			return released, err
		}
		released = append(released, task.ID)
	}
	return released, nil
}
