package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Iron-Ham/teamwork/internal/dirlock"
	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/util"
)

// File and directory names inside a team directory.
const (
	ConfigFileName = "config.json"
	InboxDir       = "inboxes"
	WorkItemsDir   = "work_items"

	configLockName = ".config.lock"
	logExt         = ".jsonl"
	lockExt        = ".lock"
)

// Store is the durable team store. It is safe for concurrent use within a
// process and across processes sharing the same filesystem.
type Store struct {
	root   string
	locker *dirlock.Locker
	logger *logging.Logger
}

// New creates a Store rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).WithComponent("store")
	if s.locker == nil {
		s.locker = dirlock.New(s.logger, nil)
	}
	return s
}

// Root returns the teams root directory.
func (s *Store) Root() string {
	return s.root
}

// TeamDir returns the directory holding a team's durable state.
func (s *Store) TeamDir(team string) string {
	return filepath.Join(s.root, team)
}

func (s *Store) configPath(team string) string {
	return filepath.Join(s.TeamDir(team), ConfigFileName)
}

func (s *Store) configLock(team string) string {
	return filepath.Join(s.TeamDir(team), configLockName)
}

// InboxPath returns the JSONL inbox log for member.
func (s *Store) InboxPath(team, member string) string {
	return filepath.Join(s.TeamDir(team), InboxDir, member+logExt)
}

func (s *Store) inboxLock(team, member string) string {
	return filepath.Join(s.TeamDir(team), InboxDir, member+lockExt)
}

// WorkItemsPath returns the JSONL work-item log for owner.
func (s *Store) WorkItemsPath(team, owner string) string {
	return filepath.Join(s.TeamDir(team), WorkItemsDir, owner+logExt)
}

func (s *Store) workItemsLock(team, owner string) string {
	return filepath.Join(s.TeamDir(team), WorkItemsDir, owner+lockExt)
}

// TeamExists reports whether the team has a config on disk.
func (s *Store) TeamExists(team string) bool {
	_, err := os.Stat(s.configPath(team))
	return err == nil
}

// CreateTeam persists a new team. It fails with CONFLICT if the team
// directory already exists.
func (s *Store) CreateTeam(ctx context.Context, team *protocol.Team) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create teams root: %w", err)
	}
	// Mkdir is the existence check; a concurrent creator loses here.
	if err := os.Mkdir(s.TeamDir(team.TeamName), 0o755); err != nil {
		if os.IsExist(err) {
			return errors.NewAlreadyExistsError("team", team.TeamName)
		}
		return fmt.Errorf("create team directory: %w", err)
	}
	for _, sub := range []string{InboxDir, WorkItemsDir} {
		if err := os.MkdirAll(filepath.Join(s.TeamDir(team.TeamName), sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if team.Version == 0 {
		team.Version = protocol.TeamVersion
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	if err := s.SaveTeam(ctx, team); err != nil {
		_ = os.RemoveAll(s.TeamDir(team.TeamName))
		return err
	}
	s.logger.WithTeam(team.TeamName).Info("team created", "members", len(team.Members))
	return nil
}

// LoadTeam reads a team config. Missing teams are NOT_FOUND.
func (s *Store) LoadTeam(team string) (*protocol.Team, error) {
	data, err := os.ReadFile(s.configPath(team))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("team", team)
		}
		return nil, fmt.Errorf("read team config: %w", err)
	}
	var t protocol.Team
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse team config %s: %w", team, err)
	}
	return &t, nil
}

// SaveTeam overwrites a team config under the config lock.
func (s *Store) SaveTeam(ctx context.Context, team *protocol.Team) error {
	return s.locker.WithLock(ctx, s.configLock(team.TeamName), func() error {
		return util.WriteJSONAtomic(s.configPath(team.TeamName), team)
	})
}

// UpdateTeam loads, mutates and saves a team config as one locked step.
// fn sees the current on-disk state; returning an error aborts the write.
func (s *Store) UpdateTeam(ctx context.Context, name string, fn func(*protocol.Team) error) (*protocol.Team, error) {
	var updated *protocol.Team
	err := s.locker.WithLock(ctx, s.configLock(name), func() error {
		t, err := s.LoadTeam(name)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := util.WriteJSONAtomic(s.configPath(name), t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTeam removes the team directory tree.
func (s *Store) DeleteTeam(ctx context.Context, team string) error {
	if !s.TeamExists(team) {
		return errors.NewNotFoundError("team", team)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.TeamDir(team)); err != nil {
		return fmt.Errorf("remove team directory: %w", err)
	}
	s.logger.WithTeam(team).Info("team deleted")
	return nil
}

// ListTeams returns the names of every team with a config, sorted.
func (s *Store) ListTeams() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read teams root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && s.TeamExists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
