package taskboard

import (
	"context"
	"slices"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// TaskInput is the data for a new task.
type TaskInput struct {
	Subject     string
	Description string
	Owner       string
	BlockedBy   []string
	Blocks      []string
}

// TaskUpdate lists the changes UpdateTask applies. Nil fields are left alone.
type TaskUpdate struct {
	Subject      *string
	Description  *string
	Owner        *string
	Status       *protocol.TaskStatus
	AddBlockedBy []string
	AddBlocks    []string
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Status        protocol.TaskStatus
	Owner         string
	ClaimableOnly bool
}

func (f TaskFilter) match(t *protocol.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Owner != "" && t.Owner != f.Owner {
		return false
	}
	if f.ClaimableOnly && !t.IsClaimable() {
		return false
	}
	return true
}

// graph is the in-memory view of a board while the lock is held.
type graph struct {
	byID  map[string]*protocol.Task
	dirty map[string]bool
}

func newGraph(tasks []*protocol.Task) *graph {
	g := &graph{byID: make(map[string]*protocol.Task, len(tasks)), dirty: map[string]bool{}}
	for _, t := range tasks {
		g.byID[t.ID] = t
	}
	return g
}

// resolve checks that every referenced id exists and is not self.
func (g *graph) resolve(self string, refs []string) ([]string, error) {
	var out []string
	for _, ref := range refs {
		if ref == "" || slices.Contains(out, ref) {
			continue
		}
		if ref == self {
			return nil, errors.NewValidationErrorf("task %s cannot depend on itself", self).WithField("blocked_by")
		}
		if _, ok := g.byID[ref]; !ok {
			return nil, errors.NewNotFoundError("task", ref)
		}
		out = append(out, ref)
	}
	return out, nil
}

// link records that blocker blocks dependent on both sides.
// A completed blocker is already satisfied, so only its blocks list grows.
func (g *graph) link(blocker, dependent *protocol.Task) {
	if !slices.Contains(blocker.Blocks, dependent.ID) {
		blocker.Blocks = append(blocker.Blocks, dependent.ID)
		g.dirty[blocker.ID] = true
	}
	if blocker.Status != protocol.TaskCompleted && !slices.Contains(dependent.BlockedBy, blocker.ID) {
		dependent.BlockedBy = append(dependent.BlockedBy, blocker.ID)
		g.dirty[dependent.ID] = true
	}
}

// unblock removes id from every task's blocked_by in one pass.
func (g *graph) unblock(id string) []string {
	var released []string
	for _, t := range g.byID {
		if i := slices.Index(t.BlockedBy, id); i >= 0 {
			t.BlockedBy = slices.Delete(t.BlockedBy, i, i+1)
			g.dirty[t.ID] = true
			if len(t.BlockedBy) == 0 {
				released = append(released, t.ID)
			}
		}
	}
	slices.SortFunc(released, compareIDs)
	return released
}

func (b *Board) flush(team string, g *graph, now time.Time) error {
	ids := make([]string, 0, len(g.dirty))
	for id := range g.dirty {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	for _, id := range ids {
		t := g.byID[id]
		t.UpdatedAt = now
		if err := b.save(team, t); err != nil {
			return err
		}
	}
	return nil
}

// CreateTask mints an id and writes a new pending task with its edges.
// Every referenced task must exist or the call fails with NOT_FOUND and
// nothing is written.
func (b *Board) CreateTask(ctx context.Context, team string, in TaskInput) (*protocol.Task, error) {
	if err := protocol.RequireText("subject", in.Subject); err != nil {
		return nil, err
	}

	var created *protocol.Task
	err := b.withBoardLock(ctx, team, func() error {
		tasks, err := b.loadAll(team)
		if err != nil {
			return err
		}
		g := newGraph(tasks)

		blockedBy, err := g.resolve("", in.BlockedBy)
		if err != nil {
			return err
		}
		blocks, err := g.resolve("", in.Blocks)
		if err != nil {
			return err
		}

		id, err := b.nextID(team, tasks)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		t := &protocol.Task{
			ID:          id,
			TeamName:    team,
			Subject:     in.Subject,
			Description: in.Description,
			Status:      protocol.TaskPending,
			Owner:       in.Owner,
			BlockedBy:   []string{},
			Blocks:      []string{},
			CreatedAt:   now,
		}
		g.byID[id] = t
		g.dirty[id] = true

		for _, ref := range blockedBy {
			g.link(g.byID[ref], t)
		}
		for _, ref := range blocks {
			g.link(t, g.byID[ref])
		}

		// The new task first, so a crash never leaves a dangling edge to a missing file.
		t.UpdatedAt = now
		if err := b.save(team, t); err != nil {
			return err
		}
		delete(g.dirty, id)
		if err := b.flush(team, g, now); err != nil {
			return err
		}
		created = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.logger.WithTeam(team).Debug("task created", "task_id", created.ID, "blocked_by", created.BlockedBy)
	return created, nil
}

// GetTask returns one task. Unknown ids are NOT_FOUND.
func (b *Board) GetTask(team, id string) (*protocol.Task, error) {
	var t protocol.Task
	if err := readTask(b.taskPath(team, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns the team's tasks in id order.
func (b *Board) ListTasks(team string, filter TaskFilter) ([]*protocol.Task, error) {
	tasks, err := b.loadAll(team)
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if filter.match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTask applies upd under the board lock. Moving to in_progress stamps
// claimed_at once; completed or canceled stamps completed_at. Completing a
// task unblocks every dependent in the same operation.
func (b *Board) UpdateTask(ctx context.Context, team, id string, upd TaskUpdate) (*protocol.Task, error) {
	if upd.Status != nil && !upd.Status.IsValid() {
		return nil, errors.NewValidationErrorf("unknown task status %q", *upd.Status).
			WithField("status").WithValue(string(*upd.Status))
	}
	if upd.Subject != nil {
		if err := protocol.RequireText("subject", *upd.Subject); err != nil {
			return nil, err
		}
	}

	var updated *protocol.Task
	err := b.withBoardLock(ctx, team, func() error {
		tasks, err := b.loadAll(team)
		if err != nil {
			return err
		}
		g := newGraph(tasks)
		t, ok := g.byID[id]
		if !ok {
			return errors.NewNotFoundError("task", id)
		}

		addBlockedBy, err := g.resolve(id, upd.AddBlockedBy)
		if err != nil {
			return err
		}
		addBlocks, err := g.resolve(id, upd.AddBlocks)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		g.dirty[id] = true
		if upd.Subject != nil {
			t.Subject = *upd.Subject
		}
		if upd.Description != nil {
			t.Description = *upd.Description
		}
		if upd.Owner != nil {
			t.Owner = *upd.Owner
		}
		if upd.Status != nil {
			applyStatus(t, *upd.Status, now)
		}
		for _, ref := range addBlockedBy {
			g.link(g.byID[ref], t)
		}
		for _, ref := range addBlocks {
			g.link(t, g.byID[ref])
		}
		if t.Status == protocol.TaskCompleted {
			g.unblock(id)
		}

		if err := b.flush(team, g, now); err != nil {
			return err
		}
		updated = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyStatus(t *protocol.Task, status protocol.TaskStatus, now time.Time) {
	t.Status = status
	switch {
	case status == protocol.TaskInProgress:
		if t.ClaimedAt == nil {
			t.ClaimedAt = &now
		}
		t.CompletedAt = nil
	case status.IsTerminal():
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	default:
		t.CompletedAt = nil
	}
}

// ClaimNextTask assigns the lowest-id claimable task to owner and moves it
// to in_progress. It returns nil when nothing is claimable.
func (b *Board) ClaimNextTask(ctx context.Context, team, owner string) (*protocol.Task, error) {
	if err := protocol.RequireText("owner", owner); err != nil {
		return nil, err
	}

	var claimed *protocol.Task
	err := b.withBoardLock(ctx, team, func() error {
		tasks, err := b.loadAll(team)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if !t.IsClaimable() {
				continue
			}
			now := time.Now().UTC()
			t.Owner = owner
			applyStatus(t, protocol.TaskInProgress, now)
			t.UpdatedAt = now
			if err := b.save(team, t); err != nil {
				return err
			}
			claimed = t.Clone()
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		b.metrics.RecordBoardClaim(team)
		b.logger.WithTeam(team).WithTeammate(owner).Debug("task claimed", "task_id", claimed.ID)
	}
	return claimed, nil
}

// ReleaseTask returns an in_progress task to the pool: pending, no owner.
func (b *Board) ReleaseTask(ctx context.Context, team, id string) (*protocol.Task, error) {
	var released *protocol.Task
	err := b.withBoardLock(ctx, team, func() error {
		var t protocol.Task
		if err := readTask(b.taskPath(team, id), &t); err != nil {
			return err
		}
		if t.Status != protocol.TaskInProgress {
			return errors.NewConflictError("task", id, "is "+t.Status.String()+", not in_progress")
		}
		t.Status = protocol.TaskPending
		t.Owner = ""
		t.ClaimedAt = nil
		t.UpdatedAt = time.Now().UTC()
		if err := b.save(team, &t); err != nil {
			return err
		}
		released = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// Counts returns the number of tasks per status.
func (b *Board) Counts(team string) (map[protocol.TaskStatus]int, error) {
	tasks, err := b.loadAll(team)
	if err != nil {
		return nil, err
	}
	counts := make(map[protocol.TaskStatus]int, 4)
	for _, s := range protocol.AllTaskStatuses() {
		counts[s] = 0
	}
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts, nil
}
