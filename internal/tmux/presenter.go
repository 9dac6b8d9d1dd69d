package tmux

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/team"
)

// DefaultCommandTimeout bounds each tmux invocation.
const DefaultCommandTimeout = 2 * time.Second

// runFunc runs tmux against socket and returns its stdout.
type runFunc func(ctx context.Context, socket string, args ...string) ([]byte, error)

func execRun(ctx context.Context, socket string, args ...string) ([]byte, error) {
	return CommandContextWithSocket(ctx, socket, args...).Output()
}

// Presenter drives tmux for a team.Manager.
type Presenter struct {
	windowCommand func(team, teammate string) string
	run           runFunc
	timeout       time.Duration
	logger        *logging.Logger

	// tmux servers race on first start; one call at a time is plenty.
	mu sync.Mutex
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithWindowCommand sets the shell command each teammate window runs, for
// example a tail of the teammate's inbox log. Without it windows open a shell.
func WithWindowCommand(fn func(team, teammate string) string) Option {
	return func(p *Presenter) {
		p.windowCommand = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Presenter) {
		p.logger = l
	}
}

// New returns a tmux presenter. It does not check that tmux is installed.
func New(opts ...Option) *Presenter {
	p := &Presenter{run: execRun, timeout: DefaultCommandTimeout}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger).WithComponent("tmux")
	return p
}

// NewPresenter returns a tmux presenter, or a no-op one when tmux is not on
// PATH.
func NewPresenter(opts ...Option) team.Presenter {
	if !Available() {
		p := New(opts...)
		p.logger.Info("tmux not found, presentation disabled")
		return team.NopPresenter{}
	}
	return New(opts...)
}

func (p *Presenter) tmux(team string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.run(ctx, TeamSocketName(team), args...)
}

// StartSession opens the team's session unless it is already running.
// Its first window belongs to the lead.
func (p *Presenter) StartSession(team string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.tmux(team, "has-session", "-t", team); err == nil {
		return nil
	}
	if _, err := p.tmux(team, "new-session", "-d", "-s", team, "-n", "lead"); err != nil {
		return err
	}
	p.logger.WithTeam(team).Debug("session started")
	return nil
}

// OpenWindow opens a window named after the teammate.
func (p *Presenter) OpenWindow(team, teammate string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := team + ":" + teammate
	if _, err := p.tmux(team, "list-panes", "-t", target); err == nil {
		return nil
	}
	args := []string{"new-window", "-d", "-t", team + ":", "-n", teammate}
	if p.windowCommand != nil {
		if cmd := p.windowCommand(team, teammate); cmd != "" {
			args = append(args, cmd)
		}
	}
	_, err := p.tmux(team, args...)
	return err
}

// CloseWindow closes the teammate's window. A missing window is not an error.
func (p *Presenter) CloseWindow(team, teammate string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := team + ":" + teammate
	if _, err := p.tmux(team, "list-panes", "-t", target); err != nil {
		return nil
	}
	_, err := p.tmux(team, "kill-window", "-t", target)
	return err
}

// StopSession kills the team's session and its tmux server, then kills any
// window process that survived.
func (p *Presenter) StopSession(team string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	survivors := p.sessionProcesses(team)
	_, _ = p.tmux(team, "kill-session", "-t", team)
	_, _ = p.tmux(team, "kill-server")
	killSurvivors(survivors)
	p.logger.WithTeam(team).Debug("session stopped", "processes", len(survivors))
	return nil
}

// sessionProcesses returns every pane process of the session and their
// descendants.
func (p *Presenter) sessionProcesses(team string) []int {
	out, err := p.tmux(team, "list-panes", "-s", "-t", team, "-F", "#{pane_pid}")
	if err != nil {
		return nil
	}
	var pids []int
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
		pids = append(pids, descendantPIDs(pid)...)
	}
	return pids
}
