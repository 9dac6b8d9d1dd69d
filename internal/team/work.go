package team

import (
	"context"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/store"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
)

// WorkInput is one entry of a fanout.
type WorkInput struct {
	Owner       string         `json:"owner" yaml:"owner"`
	Title       string         `json:"title" yaml:"title"`
	Instruction string         `json:"instruction" yaml:"instruction"`
	Payload     map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// WorkReport is the result of CollectWork.
type WorkReport struct {
	Items    []protocol.WorkItem              `json:"items"`
	Counts   map[protocol.WorkStatus]int      `json:"counts"`
	ByStatus map[protocol.WorkStatus][]string `json:"by_status"`
}

// Done reports whether every collected item reached a terminal status.
func (r WorkReport) Done() bool {
	for _, it := range r.Items {
		if !it.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func validateWork(t *protocol.Team, i int, in WorkInput) error {
	member, ok := t.Member(in.Owner)
	if !ok {
		return errors.NewNotFoundError("teammate", in.Owner)
	}
	if member.IsLead() {
		return errors.NewValidationErrorf("work item %d: the lead %s cannot own work", i, in.Owner).
			WithField("owner").WithValue(in.Owner)
	}
	if err := protocol.RequireText("title", in.Title); err != nil {
		return err
	}
	return protocol.RequireText("instruction", in.Instruction)
}

// FanoutWork validates every entry, then queues one work item per entry and
// starts the owners' workers. Nothing is queued if any entry is invalid.
func (m *Manager) FanoutWork(ctx context.Context, team string, inputs []WorkInput) ([]protocol.WorkItem, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.NewValidationError("fanout needs at least one work item").WithField("items")
	}
	for i, in := range inputs {
		if err := validateWork(t, i, in); err != nil {
			return nil, err
		}
	}

	items := make([]protocol.WorkItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := m.queueWork(ctx, t.TeamName, protocol.WorkItem{
			TeamName:    t.TeamName,
			Owner:       in.Owner,
			Title:       in.Title,
			Instruction: in.Instruction,
			Payload:     in.Payload,
		})
		if err != nil {
			return items, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// queueWork persists a queued item, announces it and wakes its owner.
func (m *Manager) queueWork(ctx context.Context, team string, item protocol.WorkItem) (*protocol.WorkItem, error) {
	created, err := m.store.CreateWorkItem(ctx, item)
	if err != nil {
		return nil, err
	}
	m.emit(team, protocol.EventWorkItemAssigned, map[string]any{
		"work_id": created.WorkID,
		"owner":   created.Owner,
		"title":   created.Title,
	})
	m.ensureWorker(team, created.Owner)
	return created, nil
}

// CollectWork reports a team's work items grouped by status. A non-empty ids
// restricts the report to those items; an unknown id is NOT_FOUND.
func (m *Manager) CollectWork(team string, ids []string) (WorkReport, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return WorkReport{}, err
	}

	var items []protocol.WorkItem
	if len(ids) == 0 {
		items, err = m.store.ListWorkItems(t.TeamName, "")
		if err != nil {
			return WorkReport{}, err
		}
	} else {
		for _, id := range ids {
			item, err := m.store.GetWorkItem(t.TeamName, id)
			if err != nil {
				return WorkReport{}, err
			}
			items = append(items, *item)
		}
	}

	report := WorkReport{
		Items:    items,
		Counts:   make(map[protocol.WorkStatus]int),
		ByStatus: make(map[protocol.WorkStatus][]string),
	}
	for _, s := range protocol.AllWorkStatuses() {
		report.Counts[s] = 0
	}
	for _, it := range items {
		report.Counts[it.Status]++
		report.ByStatus[it.Status] = append(report.ByStatus[it.Status], it.WorkID)
	}
	if report.Items == nil {
		report.Items = []protocol.WorkItem{}
	}
	return report, nil
}

// RetryFailedWork puts a failed or canceled item back in its owner's queue.
// A linked board task is reopened for the same owner.
func (m *Manager) RetryFailedWork(ctx context.Context, team, workID string) (*protocol.WorkItem, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	item, err := m.store.UpdateWorkItemStatus(ctx, t.TeamName, workID, store.WorkUpdate{
		Status:   protocol.WorkQueued,
		IfStatus: []protocol.WorkStatus{protocol.WorkFailed, protocol.WorkCanceled},
	})
	if err != nil {
		return nil, err
	}

	if taskID := item.BoardTaskID(); taskID != "" {
		status := protocol.TaskInProgress
		owner := item.Owner
		if _, err := m.board.UpdateTask(ctx, t.TeamName, taskID, taskboard.TaskUpdate{
			Status: &status,
			Owner:  &owner,
		}); err != nil {
			m.logger.WithTeam(t.TeamName).Warn("reopen linked task failed",
				"task_id", taskID, "work_id", workID, "error", err.Error())
		}
	}

	m.emit(t.TeamName, protocol.EventWorkItemRequeued, map[string]any{
		"work_id": item.WorkID,
		"owner":   item.Owner,
		"reason":  "retry",
	})
	m.ensureWorker(t.TeamName, item.Owner)
	return item, nil
}

// CancelWork cancels a queued item. Running items cannot be canceled.
// A linked board task goes back to the pool.
func (m *Manager) CancelWork(ctx context.Context, team, workID string) (*protocol.WorkItem, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	item, err := m.store.UpdateWorkItemStatus(ctx, t.TeamName, workID, store.WorkUpdate{
		Status:   protocol.WorkCanceled,
		IfStatus: []protocol.WorkStatus{protocol.WorkQueued},
	})
	if err != nil {
		return nil, err
	}
	if taskID := item.BoardTaskID(); taskID != "" {
		if _, err := m.board.ReleaseTask(ctx, t.TeamName, taskID); err != nil {
			m.logger.WithTeam(t.TeamName).Warn("release linked task failed",
				"task_id", taskID, "work_id", workID, "error", err.Error())
		}
	}
	return item, nil
}

// executeWorkItem runs a claimed item and records its outcome. Execution
// errors fail the item, never the worker.
func (m *Manager) executeWorkItem(ctx context.Context, member protocol.Member, item *protocol.WorkItem) {
	team := item.TeamName
	logger := m.logger.WithTeam(team).WithTeammate(member.Name).With("work_id", item.WorkID)
	taskID := item.BoardTaskID()

	m.emit(team, protocol.EventWorkItemStarted, map[string]any{
		"work_id": item.WorkID,
		"owner":   item.Owner,
		"attempt": item.Attempt,
		"title":   item.Title,
	})

	start := time.Now()
	res, runErr := m.runner.Run(ctx, *item, member.ToolPolicy)
	elapsed := time.Since(start)

	// Outcomes are recorded even when the worker's context is gone.
	rctx := context.WithoutCancel(ctx)

	if runErr != nil && ctx.Err() != nil {
		if _, err := m.store.UpdateWorkItemStatus(rctx, team, item.WorkID, store.WorkUpdate{
			Status:   protocol.WorkQueued,
			IfStatus: []protocol.WorkStatus{protocol.WorkRunning},
		}); err != nil {
			logger.Warn("requeue after shutdown failed", "error", err.Error())
		}
		logger.Info("work item interrupted by shutdown")
		return
	}

	upd := store.WorkUpdate{IfStatus: []protocol.WorkStatus{protocol.WorkRunning}}
	if runErr == nil {
		upd.Status = protocol.WorkSucceeded
		upd.Result = &res.Output
	} else {
		msg := runErr.Error()
		upd.Status = protocol.WorkFailed
		upd.Error = &msg
	}
	if _, err := m.store.UpdateWorkItemStatus(rctx, team, item.WorkID, upd); err != nil {
		logger.Warn("record work outcome failed", "status", string(upd.Status), "error", err.Error())
		return
	}
	m.metrics.RecordWorkOutcome(team, string(upd.Status), elapsed)

	if taskID != "" {
		status := protocol.TaskCompleted
		if runErr != nil {
			status = protocol.TaskCanceled
		}
		if _, err := m.board.UpdateTask(rctx, team, taskID, taskboard.TaskUpdate{Status: &status}); err != nil {
			logger.Warn("update linked task failed", "task_id", taskID, "error", err.Error())
		} else {
			m.emit(team, protocol.EventTaskUpdated, map[string]any{
				"task_id": taskID,
				"status":  string(status),
			})
		}
	}

	payload := map[string]any{
		"work_id":     item.WorkID,
		"owner":       item.Owner,
		"attempt":     item.Attempt,
		"duration_ms": elapsed.Milliseconds(),
	}
	if taskID != "" {
		payload["board_task_id"] = taskID
	}
	if runErr == nil {
		payload["steps"] = res.Steps
		m.emit(team, protocol.EventWorkItemCompleted, payload)
		logger.Info("work item succeeded", "duration", elapsed.String())
		return
	}
	payload["error"] = runErr.Error()
	m.emit(team, protocol.EventWorkItemFailed, payload)
	logger.Warn("work item failed", "duration", elapsed.String(), "error", runErr.Error())
}
