package cmd

import (
	"fmt"

	"github.com/Iron-Ham/teamwork/internal/config"
	"github.com/Iron-Ham/teamwork/internal/execution"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/store"
	"github.com/Iron-Ham/teamwork/internal/team"
	"github.com/Iron-Ham/teamwork/internal/tmux"
)

// session is everything one command invocation needs.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Collector
	manager *team.Manager
}

// sessionOptions selects what a command runs in-process.
type sessionOptions struct {
	// workers runs teammate workers here. Without it work is only recorded.
	workers bool
	// metrics collects Prometheus metrics.
	metrics bool
}

// openSession loads the configuration and builds a Manager over it.
func openSession(opts sessionOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	s := &session{cfg: cfg, logger: logger}
	if opts.metrics {
		s.metrics = metrics.NewCollector()
	}

	teamsRoot := cfg.Storage.ResolveTeamsRoot()
	mopts := []team.ManagerOption{
		team.WithConfig(cfg),
		team.WithLogger(logger),
		team.WithMetrics(s.metrics),
	}
	if !opts.workers {
		mopts = append(mopts, team.WithoutWorkers())
	}
	if cfg.Execution.Command != "" {
		mopts = append(mopts, team.WithExecutor(execution.NewCommandExecutor(cfg.Execution.Command)))
	}
	if opts.workers && cfg.Presentation.Tmux {
		paths := store.New(teamsRoot)
		mopts = append(mopts, team.WithPresenter(tmux.NewPresenter(
			tmux.WithLogger(logger),
			tmux.WithWindowCommand(func(team, teammate string) string {
				return "tail -F " + paths.InboxPath(team, teammate)
			}),
		)))
	}

	mgr, err := team.NewManager(team.ManagerConfig{
		TeamsRoot: teamsRoot,
		TasksRoot: cfg.Storage.ResolveTasksRoot(),
	}, mopts...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	s.manager = mgr
	return s, nil
}

// Close stops any workers and releases the log file.
func (s *session) Close() error {
	err := s.manager.Close()
	if cerr := s.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// withSession runs fn against a worker-less session.
func withSession(fn func(s *session) error) error {
	s, err := openSession(sessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}
