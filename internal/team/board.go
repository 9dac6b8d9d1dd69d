package team

import (
	"context"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
)

// CreateTask posts a task to the team board and wakes the team's workers so
// an idle teammate can claim it.
func (m *Manager) CreateTask(ctx context.Context, team string, in taskboard.TaskInput) (*protocol.Task, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	if in.Owner != "" && !t.HasMember(in.Owner) {
		return nil, errors.NewNotFoundError("teammate", in.Owner)
	}
	task, err := m.board.CreateTask(ctx, t.TeamName, in)
	if err != nil {
		return nil, err
	}
	m.emit(t.TeamName, protocol.EventTaskCreated, map[string]any{
		"task_id":    task.ID,
		"subject":    task.Subject,
		"owner":      task.Owner,
		"blocked_by": task.BlockedBy,
	})
	m.ensureWorkers(t)
	return task, nil
}

// UpdateTask applies upd to a board task. Completing a task can unblock
// others, so the team's workers are woken afterwards.
func (m *Manager) UpdateTask(ctx context.Context, team, id string, upd taskboard.TaskUpdate) (*protocol.Task, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	if upd.Owner != nil && *upd.Owner != "" && !t.HasMember(*upd.Owner) {
		return nil, errors.NewNotFoundError("teammate", *upd.Owner)
	}
	task, err := m.board.UpdateTask(ctx, t.TeamName, id, upd)
	if err != nil {
		return nil, err
	}
	m.emit(t.TeamName, protocol.EventTaskUpdated, map[string]any{
		"task_id": task.ID,
		"status":  string(task.Status),
		"owner":   task.Owner,
	})
	m.ensureWorkers(t)
	return task, nil
}

// GetTask returns one board task.
func (m *Manager) GetTask(team, id string) (*protocol.Task, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	return m.board.GetTask(t.TeamName, id)
}

// ListTasks returns the team's board tasks matching filter, in id order.
func (m *Manager) ListTasks(team string, filter taskboard.TaskFilter) ([]*protocol.Task, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.NewValidationErrorf("invalid task status %q", filter.Status).
			WithField("status").WithValue(string(filter.Status))
	}
	return m.board.ListTasks(t.TeamName, filter)
}

// ReleaseTask puts an in_progress task back on the board unowned.
func (m *Manager) ReleaseTask(ctx context.Context, team, id string) (*protocol.Task, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	task, err := m.board.ReleaseTask(ctx, t.TeamName, id)
	if err != nil {
		return nil, err
	}
	m.emit(t.TeamName, protocol.EventTaskUpdated, map[string]any{
		"task_id": task.ID,
		"status":  string(task.Status),
		"owner":   "",
	})
	m.ensureWorkers(t)
	return task, nil
}
