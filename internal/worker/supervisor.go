package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Config controls worker cadence.
type Config struct {
	// PollInterval is the sleep between polls that found no work.
	PollInterval time.Duration
	// IdleTimeout retires a worker that has done nothing for this long (0 = never).
	IdleTimeout time.Duration
}

// DefaultConfig returns the default worker cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval: 50 * time.Millisecond,
		IdleTimeout:  time.Minute,
	}
}

type key struct {
	team string
	name string
}

// Supervisor owns every worker, keyed by (team, teammate).
type Supervisor struct {
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Collector
	emitter event.Emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[key]*Worker
	wg      sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithMetrics sets the collector tracking live workers.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithEmitter sets where worker_started and worker_stopped events go.
func WithEmitter(e event.Emitter) Option {
	return func(s *Supervisor) {
		s.emitter = e
	}
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[key]*Worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = event.Discard
	}
	s.logger = logging.OrNop(s.logger).WithComponent("supervisor")
	return s
}

// Start launches a worker for (team, name) unless one is already live.
// It reports whether a new loop was started. Starting a key whose worker is
// stopping schedules a replacement instead; the call then returns false.
func (s *Supervisor) Start(team, name string, poll PollFunc) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}

	if w, ok := s.workers[key{team, name}]; ok {
		w.mu.Lock()
		if w.stopping {
			w.restart = poll
		}
		w.mu.Unlock()
		w.Wake()
		s.mu.Unlock()
		return false
	}

	w := newWorker(s, team, name, poll)
	s.workers[key{team, name}] = w
	s.wg.Go(func() { w.run(s.ctx) })
	s.mu.Unlock()

	// Emit outside the mutex; bus handlers may call back into the supervisor.
	s.metrics.WorkerStarted(team)
	s.emitter.Emit(team, protocol.EventWorkerStarted, map[string]any{"teammate": name})
	w.logger.Info("worker started")
	return true
}

// retire decides whether an idle worker may exit. A wake request that
// arrived in the meantime keeps it running.
func (s *Supervisor) retire(w *Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.wakePending() {
		return false
	}
	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()
	return true
}

// exited unregisters w and starts its replacement if one was requested.
func (s *Supervisor) exited(w *Worker, reason string) {
	s.mu.Lock()
	w.mu.Lock()
	w.state = protocol.WorkerStopped
	restart := w.restart
	w.restart = nil
	w.mu.Unlock()

	k := key{w.team, w.name}
	if s.workers[k] == w {
		delete(s.workers, k)
	}
	s.mu.Unlock()

	s.metrics.WorkerStopped(w.team)
	s.emitter.Emit(w.team, protocol.EventWorkerStopped, map[string]any{
		"teammate": w.name,
		"reason":   reason,
	})
	w.logger.Info("worker stopped", "reason", reason)
	// Joiners wake only after observers have seen the stop.
	close(w.done)

	if restart != nil {
		s.Start(w.team, w.name, restart)
	}
}

// Stop asks the (team, name) worker to exit. It reports whether one was live.
func (s *Supervisor) Stop(team, name string) bool {
	s.mu.Lock()
	w, ok := s.workers[key{team, name}]
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.Stop()
	return true
}

// StopTeam stops every worker of team and waits up to timeout for them to
// exit. Workers still running at the deadline yield a CONFLICT error.
func (s *Supervisor) StopTeam(team string, timeout time.Duration) error {
	s.mu.Lock()
	var workers []*Worker
	for k, w := range s.workers {
		if k.team == team {
			workers = append(workers, w)
		}
	}
	s.mu.Unlock()

	return s.join(workers, timeout, team)
}

func (s *Supervisor) join(workers []*Worker, timeout time.Duration, team string) error {
	for _, w := range workers {
		w.Stop()
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var stuck []string
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-deadline.C:
			// Expired; collect whatever has not finished yet without waiting.
			for _, rest := range workers {
				select {
				case <-rest.Done():
				default:
					stuck = append(stuck, rest.name)
				}
			}
			return errors.NewConflictError("team", team,
				fmt.Sprintf("%d workers still running after %s: %v", len(stuck), timeout, stuck))
		}
	}
	return nil
}

// Wake nudges the (team, name) worker to poll now. It reports whether one was live.
func (s *Supervisor) Wake(team, name string) bool {
	s.mu.Lock()
	w, ok := s.workers[key{team, name}]
	s.mu.Unlock()
	if ok {
		w.Wake()
	}
	return ok
}

// IsLive reports whether (team, name) has a running worker.
func (s *Supervisor) IsLive(team, name string) bool {
	s.mu.Lock()
	w, ok := s.workers[key{team, name}]
	s.mu.Unlock()
	return ok && w.State().IsLive()
}

// Get returns the status of the (team, name) worker.
func (s *Supervisor) Get(team, name string) (Status, bool) {
	s.mu.Lock()
	w, ok := s.workers[key{team, name}]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return w.Status(), true
}

// Snapshot returns the status of every registered worker of team, sorted by
// teammate. An empty team lists all workers.
func (s *Supervisor) Snapshot(team string) []Status {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for k, w := range s.workers {
		if team == "" || k.team == team {
			workers = append(workers, w)
		}
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Team != out[j].Team {
			return out[i].Team < out[j].Team
		}
		return out[i].Teammate < out[j].Teammate
	})
	return out
}

// Close stops every worker, waits up to timeout, then cancels the context
// shared by all polls. No worker can be started afterwards.
func (s *Supervisor) Close(timeout time.Duration) error {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	err := s.join(workers, timeout, "*")
	s.cancel()
	if err == nil {
		s.wg.Wait()
	}
	return err
}
