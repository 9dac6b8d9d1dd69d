package taskboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/teamwork/internal/dirlock"
	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/util"
)

const (
	metaFileName  = "_meta.json"
	boardLockName = ".board.lock"
	taskExt       = ".json"
)

type meta struct {
	NextID int `json:"next_id"`
}

// Board is the durable task board store.
type Board struct {
	root    string
	locker  *dirlock.Locker
	logger  *logging.Logger
	metrics *metrics.Collector
}

// Option configures a Board.
type Option func(*Board)

// WithLocker sets the lock implementation.
func WithLocker(l *dirlock.Locker) Option {
	return func(b *Board) { b.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithMetrics records claims on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Board) { b.metrics = m }
}

// New creates a Board rooted at root.
func New(root string, opts ...Option) *Board {
	b := &Board{root: root}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger).WithComponent("taskboard")
	if b.locker == nil {
		b.locker = dirlock.New(b.logger, b.metrics)
	}
	return b
}

// Root returns the tasks root directory.
func (b *Board) Root() string {
	return b.root
}

// BoardDir returns the directory holding a team's tasks.
func (b *Board) BoardDir(team string) string {
	return filepath.Join(b.root, team)
}

func (b *Board) taskPath(team, id string) string {
	// Ids never contain separators; keep lookups inside the board directory.
	return filepath.Join(b.BoardDir(team), filepath.Base(id)+taskExt)
}

func (b *Board) withBoardLock(ctx context.Context, team string, fn func() error) error {
	if err := os.MkdirAll(b.BoardDir(team), 0o755); err != nil {
		return fmt.Errorf("create board directory: %w", err)
	}
	return b.locker.WithLock(ctx, filepath.Join(b.BoardDir(team), boardLockName), fn)
}

// loadAll reads every task of a team, ordered by numeric id.
func (b *Board) loadAll(team string) ([]*protocol.Task, error) {
	entries, err := os.ReadDir(b.BoardDir(team))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read board directory: %w", err)
	}
	var tasks []*protocol.Task
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == metaFileName || !strings.HasSuffix(name, taskExt) {
			continue
		}
		var t protocol.Task
		if err := util.ReadJSON(filepath.Join(b.BoardDir(team), name), &t); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	slices.SortFunc(tasks, func(x, y *protocol.Task) int {
		return compareIDs(x.ID, y.ID)
	})
	return tasks, nil
}

// compareIDs orders numeric ids numerically and anything else lexically after them.
func compareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai - bi
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// nextID reads and bumps the id counter. Caller holds the board lock.
// The counter never falls behind the highest existing id.
func (b *Board) nextID(team string, existing []*protocol.Task) (string, error) {
	var m meta
	path := filepath.Join(b.BoardDir(team), metaFileName)
	if err := util.ReadJSON(path, &m); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	next := max(m.NextID, 1)
	for _, t := range existing {
		if n, err := strconv.Atoi(t.ID); err == nil && n >= next {
			next = n + 1
		}
	}
	if err := util.WriteJSONAtomic(path, meta{NextID: next + 1}); err != nil {
		return "", err
	}
	return strconv.Itoa(next), nil
}

func (b *Board) save(team string, t *protocol.Task) error {
	return util.WriteJSONAtomic(b.taskPath(team, t.ID), t)
}

// DeleteBoard removes a team's board. A missing board is not an error.
func (b *Board) DeleteBoard(ctx context.Context, team string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(b.BoardDir(team)); err != nil {
		return fmt.Errorf("remove board: %w", err)
	}
	return nil
}

// readTask reads one task file, mapping a missing file to NOT_FOUND.
func readTask(path string, t *protocol.Task) error {
	if err := util.ReadJSON(path, t); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("task", strings.TrimSuffix(filepath.Base(path), taskExt))
		}
		return err
	}
	return nil
}
