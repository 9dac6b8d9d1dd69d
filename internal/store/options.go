package store

import (
	"github.com/Iron-Ham/teamwork/internal/dirlock"
	"github.com/Iron-Ham/teamwork/internal/logging"
)

// Option configures a Store.
type Option func(*Store)

// WithLocker sets the lock implementation. Defaults to dirlock.New.
func WithLocker(l *dirlock.Locker) Option {
	return func(s *Store) {
		s.locker = l
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}
