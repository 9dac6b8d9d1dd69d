package team

import (
	"sync"
	"time"

	"github.com/Iron-Ham/teamwork/internal/approval"
	"github.com/Iron-Ham/teamwork/internal/dirlock"
	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/execution"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/router"
	"github.com/Iron-Ham/teamwork/internal/store"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
	"github.com/Iron-Ham/teamwork/internal/worker"
)

// ManagerConfig holds the required locations for a Manager.
type ManagerConfig struct {
	TeamsRoot string // one directory per team: config, inboxes, work items
	TasksRoot string // one directory per team board
}

// Manager composes storage, routing, approval, workers and execution into
// the team control plane. It is safe for concurrent use by callers and by
// its own workers.
type Manager struct {
	store     *store.Store
	board     *taskboard.Board
	router    *router.Router
	gate      *approval.Gate
	events    *event.Hub
	sup       *worker.Supervisor
	runner    *execution.Runner
	presenter Presenter
	logger    *logging.Logger
	metrics   *metrics.Collector

	joinTimeout time.Duration
	noWorkers   bool

	mu       sync.Mutex
	deleting map[string]bool
	// seen holds inbox message ids already acted on, per team, so a failed
	// durable ack does not replay the message on the next poll.
	seen   map[string]map[string]struct{}
	subs   []string
	closed bool
}

// NewManager creates a Manager rooted at cfg's directories.
func NewManager(cfg ManagerConfig, opts ...ManagerOption) (*Manager, error) {
	if cfg.TeamsRoot == "" {
		return nil, errors.NewValidationError("team: TeamsRoot is required").WithField("teams_root")
	}
	if cfg.TasksRoot == "" {
		return nil, errors.NewValidationError("team: TasksRoot is required").WithField("tasks_root")
	}

	mc := defaultManagerConfig()
	for _, opt := range opts {
		opt(mc)
	}
	logger := logging.OrNop(mc.logger)

	locker := dirlock.New(logger, mc.metrics)
	locker.Timeout = mc.lock.Timeout()
	locker.StaleAfter = mc.lock.StaleAfter()
	locker.RetryInterval = mc.lock.RetryInterval()

	hub := event.NewHub(mc.maxEvents, logger)
	st := store.New(cfg.TeamsRoot, store.WithLocker(locker), store.WithLogger(logger))

	execOpts := []execution.Option{execution.WithLogger(logger)}
	if mc.executor != nil {
		execOpts = append(execOpts, execution.WithExecutor(mc.executor))
	}
	if mc.model != nil {
		execOpts = append(execOpts, execution.WithModel(mc.model, mc.tools))
	}

	presenter := mc.presenter
	if presenter == nil {
		presenter = NopPresenter{}
	}

	m := &Manager{
		store: st,
		board: taskboard.New(cfg.TasksRoot,
			taskboard.WithLocker(locker),
			taskboard.WithLogger(logger),
			taskboard.WithMetrics(mc.metrics)),
		router: router.New(st,
			router.WithEmitter(hub),
			router.WithLogger(logger),
			router.WithMetrics(mc.metrics)),
		gate: approval.NewGate(approval.WithEmitter(hub), approval.WithLogger(logger)),
		events: hub,
		sup: worker.NewSupervisor(mc.worker,
			worker.WithLogger(logger),
			worker.WithMetrics(mc.metrics),
			worker.WithEmitter(hub)),
		runner:      execution.NewRunner(mc.execution, execOpts...),
		presenter:   presenter,
		logger:      logger.WithComponent("team-manager"),
		metrics:     mc.metrics,
		joinTimeout: mc.joinTimeout,
		noWorkers:   mc.noWorkers,
		deleting:    make(map[string]bool),
		seen:        make(map[string]map[string]struct{}),
	}
	m.subscribePresenter()
	return m, nil
}

// subscribePresenter mirrors worker lifecycle into the presenter.
func (m *Manager) subscribePresenter() {
	bus := m.events.Bus()
	m.subs = append(m.subs,
		bus.Subscribe(string(protocol.EventWorkerStarted), func(e event.Event) {
			if rec, ok := e.(event.Record); ok {
				m.present("open window", rec.Team, m.presenter.OpenWindow(rec.Team, payloadString(rec.Payload, "teammate")))
			}
		}),
		bus.Subscribe(string(protocol.EventWorkerStopped), func(e event.Event) {
			if rec, ok := e.(event.Record); ok {
				m.present("close window", rec.Team, m.presenter.CloseWindow(rec.Team, payloadString(rec.Payload, "teammate")))
			}
		}),
	)
}

func (m *Manager) present(action, team string, err error) {
	if err != nil {
		m.logger.WithTeam(team).Warn("presenter failed", "action", action, "error", err.Error())
	}
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

// Events exposes the event hub for observers that subscribe to the bus.
func (m *Manager) Events() *event.Hub {
	return m.events
}

// Store exposes the durable store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Board exposes the task board.
func (m *Manager) Board() *taskboard.Board {
	return m.board
}

// Workers returns the status of every registered worker.
func (m *Manager) Workers() []worker.Status {
	return m.sup.Snapshot("")
}

// emit records an event for team.
func (m *Manager) emit(team string, typ protocol.EventType, payload map[string]any) {
	m.events.Emit(team, typ, payload)
}

// DrainEvents returns and clears the pending events of team.
func (m *Manager) DrainEvents(team string) []event.Record {
	return m.events.Drain(team)
}

// loadTeam resolves a caller-supplied team name to its config. A name that
// is not already in sanitized form cannot name a stored team.
func (m *Manager) loadTeam(name string) (*protocol.Team, error) {
	clean, err := protocol.SanitizeName(name)
	if err != nil || clean != name {
		return nil, errors.NewNotFoundError("team", name)
	}
	return m.store.LoadTeam(clean)
}

func (m *Manager) isDeleting(team string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleting[team]
}

// ensureWorker starts the teammate's worker, or wakes it if it is live.
// Workers are never started for a team that is being deleted.
// It reports whether a new worker was started.
func (m *Manager) ensureWorker(team, name string) bool {
	if m.noWorkers || m.isDeleting(team) {
		return false
	}
	if !m.sup.Start(team, name, m.pollFunc(team, name)) {
		return false
	}
	m.logger.WithTeam(team).Debug("worker spawned", "teammate", name)
	return true
}

// ensureWorkers starts or wakes every non-lead member of t and reports how
// many workers were started.
func (m *Manager) ensureWorkers(t *protocol.Team) int {
	started := 0
	for _, w := range t.Workers() {
		if m.ensureWorker(t.TeamName, w.Name) {
			started++
		}
	}
	return started
}

func (m *Manager) markSeen(team, id string) (first bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.seen[team]
	if !ok {
		ids = make(map[string]struct{})
		m.seen[team] = ids
	}
	if _, done := ids[id]; done {
		return false
	}
	ids[id] = struct{}{}
	return true
}

func (m *Manager) unmarkSeen(team, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen[team], id)
}

func (m *Manager) forget(team string) {
	m.mu.Lock()
	delete(m.seen, team)
	m.mu.Unlock()
	m.router.Forget(team)
	m.gate.Forget(team)
}

// Close stops every worker, waiting up to the join timeout for each.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.sup.Close(m.joinTimeout)
	for _, id := range m.subs {
		m.events.Bus().Unsubscribe(id)
	}
	return err
}
