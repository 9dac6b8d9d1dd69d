package team

import (
	"context"
	"slices"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// normalizeMembers sanitizes members and settles the lead: an explicit lead
// wins, otherwise the first member leads.
func normalizeMembers(members []protocol.Member) ([]protocol.Member, error) {
	if len(members) == 0 {
		return nil, errors.NewValidationError("a team needs at least one member").WithField("members")
	}
	hasLead := slices.ContainsFunc(members, func(m protocol.Member) bool { return m.Role == protocol.RoleLead })
	out := make([]protocol.Member, 0, len(members))
	seen := make(map[string]bool, len(members))
	leads := 0
	for i, raw := range members {
		if i == 0 && !hasLead {
			raw.Role = protocol.RoleLead
		}
		m, err := protocol.NormalizeMember(raw)
		if err != nil {
			return nil, err
		}
		if seen[m.Name] {
			return nil, errors.NewValidationErrorf("duplicate member name %q", m.Name).
				WithField("members").WithValue(m.Name)
		}
		seen[m.Name] = true
		if m.IsLead() {
			leads++
		}
		out = append(out, m)
	}
	if leads > 1 {
		return nil, errors.NewValidationError("a team has exactly one lead").WithField("members")
	}
	return out, nil
}

// CreateTeam persists a new team and starts a worker for every non-lead
// member. Member names must be unique after sanitizing.
func (m *Manager) CreateTeam(ctx context.Context, name string, members []protocol.Member) (*protocol.Team, error) {
	clean, err := protocol.SanitizeName(name)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	if m.isDeleting(clean) {
		return nil, errors.NewConflictError("team", clean, "team is being deleted")
	}

	t := &protocol.Team{TeamName: clean, Members: normalized}
	if err := m.store.CreateTeam(ctx, t); err != nil {
		return nil, err
	}

	m.emit(clean, protocol.EventTeamCreated, map[string]any{
		"members": t.MemberNames(),
		"lead":    t.Lead(),
	})
	m.present("start session", clean, m.presenter.StartSession(clean))
	m.ensureWorkers(t)
	return t.Clone(), nil
}

// DeleteTeam asks every teammate to shut down, waits for their workers to
// exit and removes the team's durable state. Workers still running after the
// join timeout fail the call with CONFLICT and leave the team in place.
func (m *Manager) DeleteTeam(ctx context.Context, name string) error {
	t, err := m.loadTeam(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.deleting[t.TeamName] {
		m.mu.Unlock()
		return errors.NewConflictError("team", t.TeamName, "delete already in progress")
	}
	m.deleting[t.TeamName] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.deleting, t.TeamName)
		m.mu.Unlock()
	}()

	logger := m.logger.WithTeam(t.TeamName)
	if lead := t.Lead(); lead != "" {
		for _, w := range t.Workers() {
			if _, err := m.router.Send(ctx, m.sendRequest(t, SendInput{
				From: lead,
				To:   w.Name,
				Type: protocol.MessageShutdownRequest,
				Text: "team is being deleted",
			})); err != nil {
				logger.Warn("shutdown request failed", "teammate", w.Name, "error", err.Error())
			}
		}
	}

	if err := m.sup.StopTeam(t.TeamName, m.joinTimeout); err != nil {
		return err
	}
	if err := m.store.DeleteTeam(ctx, t.TeamName); err != nil {
		return err
	}
	if err := m.board.DeleteBoard(ctx, t.TeamName); err != nil {
		return err
	}
	m.forget(t.TeamName)

	m.emit(t.TeamName, protocol.EventTeamDeleted, map[string]any{"members": t.MemberNames()})
	m.present("stop session", t.TeamName, m.presenter.StopSession(t.TeamName))
	logger.Info("team deleted")
	return nil
}

// ListTeams returns every stored team name, sorted.
func (m *Manager) ListTeams() ([]string, error) {
	return m.store.ListTeams()
}

// GetTeam returns a team's config.
func (m *Manager) GetTeam(name string) (*protocol.Team, error) {
	return m.loadTeam(name)
}

// SpawnTeammate adds a worker member to a team and starts its worker.
func (m *Manager) SpawnTeammate(ctx context.Context, team string, member protocol.Member) (protocol.Member, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return protocol.Member{}, err
	}
	if member.Role == protocol.RoleLead {
		return protocol.Member{}, errors.NewValidationError("a spawned teammate cannot be the lead").
			WithField("role").WithValue(string(member.Role))
	}
	normalized, err := protocol.NormalizeMember(member)
	if err != nil {
		return protocol.Member{}, err
	}

	_, err = m.store.UpdateTeam(ctx, t.TeamName, func(cur *protocol.Team) error {
		if cur.HasMember(normalized.Name) {
			return errors.NewValidationErrorf("teammate %q already exists in team %s", normalized.Name, cur.TeamName).
				WithField("name").WithValue(normalized.Name)
		}
		cur.Members = append(cur.Members, normalized)
		return nil
	})
	if err != nil {
		return protocol.Member{}, err
	}

	m.emit(t.TeamName, protocol.EventTeammateSpawned, map[string]any{
		"teammate":              normalized.Name,
		"role":                  string(normalized.Role),
		"require_plan_approval": normalized.ToolPolicy.RequiresPlanApproval(),
	})
	m.ensureWorker(t.TeamName, normalized.Name)
	return normalized, nil
}
