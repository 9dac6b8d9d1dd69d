package dirlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
)

// OwnerFileName is the file inside a lock directory naming its holder.
const OwnerFileName = "owner"

// Default timings.
const (
	DefaultTimeout       = 3 * time.Second
	DefaultStaleAfter    = 30 * time.Second
	DefaultRetryInterval = 10 * time.Millisecond
)

// Locker acquires directory locks. The zero value uses the default timings.
type Locker struct {
	Timeout       time.Duration
	StaleAfter    time.Duration
	RetryInterval time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// New returns a Locker with default timings.
func New(logger *logging.Logger, m *metrics.Collector) *Locker {
	return &Locker{
		Timeout:       DefaultTimeout,
		StaleAfter:    DefaultStaleAfter,
		RetryInterval: DefaultRetryInterval,
		Logger:        logger,
		Metrics:       m,
	}
}

func (l *Locker) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultTimeout
}

func (l *Locker) staleAfter() time.Duration {
	if l.StaleAfter > 0 {
		return l.StaleAfter
	}
	return DefaultStaleAfter
}

func (l *Locker) retryInterval() time.Duration {
	if l.RetryInterval > 0 {
		return l.RetryInterval
	}
	return DefaultRetryInterval
}

// Lock is a held directory lock.
type Lock struct {
	path   string
	token  string
	logger *logging.Logger

	mu       sync.Mutex
	released bool
}

// Path returns the lock directory.
func (lk *Lock) Path() string {
	return lk.path
}

// Acquire takes the lock at path, creating missing parent directories.
// It returns a TIMEOUT error once the Locker's timeout elapses, or the
// context's error if ctx is done first.
func (l *Locker) Acquire(ctx context.Context, path string) (*Lock, error) {
	logger := logging.OrNop(l.Logger)
	timeout := l.timeout()
	deadline := time.Now().Add(timeout)
	token := uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock parent: %w", err)
	}

	for {
		err := os.Mkdir(path, 0755)
		if err == nil {
			if werr := os.WriteFile(filepath.Join(path, OwnerFileName), []byte(ownerLine(token)), 0644); werr != nil {
				_ = os.RemoveAll(path)
				return nil, fmt.Errorf("write lock owner: %w", werr)
			}
			l.Metrics.RecordLockAcquisition(metrics.LockAcquired)
			return &Lock{path: path, token: token, logger: logger}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}

		if l.reclaimIfStale(path, token, logger) {
			continue
		}

		if !time.Now().Before(deadline) {
			l.Metrics.RecordLockAcquisition(metrics.LockTimeout)
			logger.Warn("lock acquisition timed out", "path", path, "timeout", timeout.String())
			return nil, errors.NewTimeoutError("acquire lock "+path, timeout)
		}

		wait := min(l.retryInterval(), time.Until(deadline))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		case <-timer.C:
		}
	}
}

// reclaimIfStale takes over the lock directory when it is older than
// StaleAfter and reports whether this acquirer did the reclaiming.
func (l *Locker) reclaimIfStale(path, token string, logger *logging.Logger) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	age := time.Since(info.ModTime())
	if age <= l.staleAfter() {
		return false
	}
	if !reclaim(path, info, token) {
		logger.Debug("stale lock taken by another waiter", "path", path)
		return false
	}
	l.Metrics.RecordStaleReclaim()
	logger.Warn("stale lock reclaimed", "path", path, "age", age.String())
	return true
}

// reclaim renames the lock directory seen by a stat to a tombstone and
// deletes it. The rename is atomic, so of several waiters that saw the same
// stale directory only one moves it. If the directory moved is not the one
// seen, another waiter reclaimed first and a new holder owns it; it is put
// back.
func reclaim(path string, seen os.FileInfo, token string) bool {
	tomb := path + ".stale-" + token
	if err := os.Rename(path, tomb); err != nil {
		return false
	}
	moved, err := os.Stat(tomb)
	// Inode numbers are reused, so the mtime must match too.
	if err != nil || !os.SameFile(seen, moved) || !moved.ModTime().Equal(seen.ModTime()) {
		if err := os.Rename(tomb, path); err != nil {
			_ = os.RemoveAll(tomb)
		}
		return false
	}
	_ = os.RemoveAll(tomb)
	return true
}

// WithLock runs fn while holding the lock at path. The lock is released
// even if fn panics.
func (l *Locker) WithLock(ctx context.Context, path string, fn func() error) error {
	lk, err := l.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()
	return fn()
}

// Release removes the lock directory. Safe to call multiple times.
// A lock that was reclaimed and re-acquired by someone else is left alone.
func (lk *Lock) Release() error {
	if lk == nil {
		return nil
	}
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.released {
		return nil
	}
	lk.released = true

	data, err := os.ReadFile(filepath.Join(lk.path, OwnerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if ownerToken(string(data)) != lk.token {
		lk.logger.Warn("lock owned by another holder, not releasing", "path", lk.path)
		return nil
	}
	if err := os.RemoveAll(lk.path); err != nil {
		return fmt.Errorf("remove lock dir: %w", err)
	}
	return nil
}

func ownerLine(token string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s %d %s\n", token, os.Getpid(), host)
}

func ownerToken(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
