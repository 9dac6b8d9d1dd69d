package team

import (
	"context"
	"slices"

	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/store"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
)

// WatchExternalChanges starts or wakes workers when another process writes
// to team state: new messages, queued work, board posts or new members.
// It blocks until ctx is done.
func (m *Manager) WatchExternalChanges(ctx context.Context) error {
	w, err := store.NewWatcher(m.store.Root(), m.board.Root(), m.logger)
	if err != nil {
		return err
	}
	go w.Run(ctx)

	for c := range w.Changes() {
		m.applyChange(c)
	}
	return nil
}

// applyChange starts a worker only when the change left it something to do,
// so a worker's own writes never revive it after a shutdown.
func (m *Manager) applyChange(c store.Change) {
	t, err := m.loadTeam(c.Team)
	if err != nil {
		return
	}
	switch c.Kind {
	case store.ChangeInbox:
		if m.isWorker(t, c.Member) && m.hasUnprocessedInbox(t.TeamName, c.Member) {
			m.ensureWorker(t.TeamName, c.Member)
		}
	case store.ChangeWorkItems:
		if m.isWorker(t, c.Member) && m.hasQueuedWork(t.TeamName, c.Member) {
			m.ensureWorker(t.TeamName, c.Member)
		}
	case store.ChangeBoard:
		claimable, err := m.board.ListTasks(t.TeamName, taskboard.TaskFilter{ClaimableOnly: true})
		if err == nil && len(claimable) > 0 {
			m.ensureWorkers(t)
		}
	case store.ChangeTeamConfig:
		for _, w := range t.Workers() {
			if m.hasQueuedWork(t.TeamName, w.Name) || m.hasUnprocessedInbox(t.TeamName, w.Name) {
				m.ensureWorker(t.TeamName, w.Name)
			}
		}
	}
}

func (m *Manager) isWorker(t *protocol.Team, name string) bool {
	member, ok := t.Member(name)
	return ok && !member.IsLead()
}

func (m *Manager) hasUnprocessedInbox(team, name string) bool {
	msgs, err := m.store.UnprocessedInbox(team, name)
	return err == nil && len(msgs) > 0
}

func (m *Manager) hasQueuedWork(team, name string) bool {
	items, err := m.store.ListWorkItems(team, name)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(items, func(it protocol.WorkItem) bool {
		return it.Status == protocol.WorkQueued
	})
}
