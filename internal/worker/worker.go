package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// PollFunc performs one unit of teammate work. It reports whether it did
// anything; an error is logged and counts as no work.
type PollFunc func(ctx context.Context) (bool, error)

// Status is a point-in-time view of a worker.
type Status struct {
	Team       string               `json:"team"`
	Teammate   string               `json:"teammate"`
	State      protocol.WorkerState `json:"state"`
	StartedAt  time.Time            `json:"started_at"`
	LastActive time.Time            `json:"last_active"`
	Heartbeat  time.Time            `json:"heartbeat"`
}

// Worker is the polling loop of a single teammate.
type Worker struct {
	team        string
	name        string
	poll        PollFunc
	interval    time.Duration
	idleTimeout time.Duration
	sup         *Supervisor
	logger      *logging.Logger

	mu         sync.Mutex
	state      protocol.WorkerState
	startedAt  time.Time
	lastActive time.Time
	heartbeat  time.Time
	stopping   bool
	restart    PollFunc // replacement poll to start once this loop exits

	stopOnce sync.Once
	stopCh   chan struct{}
	wake     chan struct{}
	done     chan struct{}
}

func newWorker(sup *Supervisor, team, name string, poll PollFunc) *Worker {
	now := time.Now().UTC()
	return &Worker{
		team:        team,
		name:        name,
		poll:        poll,
		interval:    sup.cfg.PollInterval,
		idleTimeout: sup.cfg.IdleTimeout,
		sup:         sup,
		logger:      sup.logger.WithTeam(team).WithTeammate(name),
		state:       protocol.WorkerStarting,
		startedAt:   now,
		lastActive:  now,
		heartbeat:   now,
		stopCh:      make(chan struct{}),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Team returns the worker's team.
func (w *Worker) Team() string { return w.team }

// Name returns the teammate the worker polls for.
func (w *Worker) Name() string { return w.name }

// State returns the current lifecycle state.
func (w *Worker) State() protocol.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot of the worker.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Team:       w.team,
		Teammate:   w.name,
		State:      w.state,
		StartedAt:  w.startedAt,
		LastActive: w.lastActive,
		Heartbeat:  w.heartbeat,
	}
}

// Done is closed once the loop has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop asks the loop to exit after the current poll. It does not wait.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.restart = nil
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Wake cuts the current sleep short so the next poll runs immediately.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) wakePending() bool {
	return len(w.wake) > 0
}

func (w *Worker) run(ctx context.Context) {
	w.mu.Lock()
	w.state = protocol.WorkerActive
	w.heartbeat = time.Now().UTC()
	w.mu.Unlock()
	w.logger.Debug("worker loop started")

	for {
		select {
		case <-w.stopCh:
			w.sup.exited(w, "stopped")
			return
		case <-ctx.Done():
			w.sup.exited(w, "canceled")
			return
		default:
		}

		did := w.pollOnce(ctx)
		idleFor := w.record(did, time.Now().UTC())
		if did {
			continue
		}

		if w.idleTimeout > 0 && idleFor >= w.idleTimeout && w.sup.retire(w) {
			w.logger.Info("worker idle timeout reached, retiring", "idle_for", idleFor.String())
			w.sup.exited(w, "idle")
			return
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-w.stopCh:
		case <-ctx.Done():
		case <-w.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// pollOnce runs the poll function, converting errors and panics into "no work".
func (w *Worker) pollOnce(ctx context.Context) (did bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("poll panicked", "panic", fmt.Sprint(r))
			did = false
		}
	}()

	did, err := w.poll(ctx)
	if err != nil {
		w.logger.Warn("poll failed", "error", err)
		return false
	}
	return did
}

// record stamps the heartbeat and moves between active and idle.
// It returns how long the worker has gone without doing work.
func (w *Worker) record(did bool, now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.heartbeat = now
	if did {
		w.state = protocol.WorkerActive
		w.lastActive = now
		return 0
	}
	w.state = protocol.WorkerIdle
	return now.Sub(w.lastActive)
}
