package tmux

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/teamwork/internal/team"
)

// fakeTmux records invocations and answers existence queries from a set of
// live targets.
type fakeTmux struct {
	mu      sync.Mutex
	calls   []string
	live    map[string]bool
	panePID string
}

func newFakeTmux() *fakeTmux {
	return &fakeTmux{live: make(map[string]bool)}
}

var errNoTarget = errors.New("can't find target")

func (f *fakeTmux) run(_ context.Context, socket string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, socket+" "+strings.Join(args, " "))

	switch args[0] {
	case "has-session", "list-panes":
		target := args[slices.Index(args, "-t")+1]
		if !f.live[target] {
			return nil, errNoTarget
		}
		if slices.Contains(args, "-F") {
			return []byte(f.panePID), nil
		}
	case "new-session":
		f.live[args[3]] = true
	case "new-window":
		team := strings.TrimSuffix(args[3], ":")
		f.live[team+":"+args[5]] = true
	case "kill-window":
		delete(f.live, args[2])
	case "kill-session":
		delete(f.live, args[2])
	}
	return nil, nil
}

func (f *fakeTmux) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.Contains(c, " has-session ") || strings.Contains(c, " list-panes ") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func newTestPresenter(f *fakeTmux, opts ...Option) *Presenter {
	p := New(opts...)
	p.run = f.run
	return p
}

func TestTeamSocketName(t *testing.T) {
	if got := TeamSocketName("demo"); got != "teamwork-demo" {
		t.Errorf("TeamSocketName() = %q, want %q", got, "teamwork-demo")
	}
}

func TestCommandArgsWithSocket(t *testing.T) {
	got := CommandArgsWithSocket("teamwork-demo", "new-window", "-n", "a")
	want := []string{"-L", "teamwork-demo", "new-window", "-n", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("CommandArgsWithSocket() = %v, want %v", got, want)
	}
}

func TestCommandContextWithSocket(t *testing.T) {
	cmd := CommandContextWithSocket(context.Background(), "teamwork-demo", "kill-server")
	want := []string{"tmux", "-L", "teamwork-demo", "kill-server"}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Args = %v, want %v", cmd.Args, want)
	}
}

func TestPresenter_SessionLifecycle(t *testing.T) {
	f := newFakeTmux()
	p := newTestPresenter(f, WithWindowCommand(func(team, teammate string) string {
		return "tail -F /teams/" + team + "/inboxes/" + teammate + ".json"
	}))

	if err := p.StartSession("demo"); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := p.StartSession("demo"); err != nil {
		t.Fatalf("second StartSession() error = %v", err)
	}
	if err := p.OpenWindow("demo", "a"); err != nil {
		t.Fatalf("OpenWindow() error = %v", err)
	}
	if err := p.OpenWindow("demo", "a"); err != nil {
		t.Fatalf("second OpenWindow() error = %v", err)
	}
	if err := p.CloseWindow("demo", "a"); err != nil {
		t.Fatalf("CloseWindow() error = %v", err)
	}
	if err := p.CloseWindow("demo", "a"); err != nil {
		t.Fatalf("CloseWindow() on a closed window error = %v", err)
	}
	if err := p.StopSession("demo"); err != nil {
		t.Fatalf("StopSession() error = %v", err)
	}

	want := []string{
		"teamwork-demo new-session -d -s demo -n lead",
		"teamwork-demo new-window -d -t demo: -n a tail -F /teams/demo/inboxes/a.json",
		"teamwork-demo kill-window -t demo:a",
		"teamwork-demo kill-session -t demo",
		"teamwork-demo kill-server",
	}
	if got := f.mutations(); !slices.Equal(got, want) {
		t.Errorf("tmux calls =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestPresenter_WindowWithoutCommandOpensShell(t *testing.T) {
	f := newFakeTmux()
	p := newTestPresenter(f)

	if err := p.OpenWindow("demo", "b"); err != nil {
		t.Fatalf("OpenWindow() error = %v", err)
	}
	want := []string{"teamwork-demo new-window -d -t demo: -n b"}
	if got := f.mutations(); !slices.Equal(got, want) {
		t.Errorf("tmux calls = %v, want %v", got, want)
	}
}

func TestPresenter_TeamsUseSeparateSockets(t *testing.T) {
	f := newFakeTmux()
	p := newTestPresenter(f)

	_ = p.StartSession("alpha")
	_ = p.StartSession("beta")
	_ = p.StopSession("alpha")

	for _, c := range f.mutations() {
		if strings.Contains(c, "kill-") && !strings.HasPrefix(c, "teamwork-alpha ") {
			t.Errorf("stopping alpha touched another socket: %q", c)
		}
	}
}

func TestPresenter_StartSessionError(t *testing.T) {
	p := New()
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no server")
	}
	if err := p.StartSession("demo"); err == nil {
		t.Error("StartSession() should surface the tmux error")
	}
}

func TestPresenter_SessionProcessesIgnoresGarbage(t *testing.T) {
	f := newFakeTmux()
	f.live["demo"] = true
	f.panePID = "not-a-pid\n-4\n"
	p := newTestPresenter(f)

	if pids := p.sessionProcesses("demo"); len(pids) != 0 {
		t.Errorf("sessionProcesses() = %v, want none", pids)
	}
}

func TestNewPresenter_FallsBackWithoutTmux(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	if _, ok := NewPresenter().(team.NopPresenter); !ok {
		t.Error("NewPresenter() without tmux should return team.NopPresenter")
	}
}

func TestProcessAlive(t *testing.T) {
	if processAlive(0) {
		t.Error("processAlive(0) = true")
	}
	if processAlive(-1) {
		t.Error("processAlive(-1) = true")
	}
}

func TestDescendantPIDs_InvalidPID(t *testing.T) {
	if got := descendantPIDs(0); got != nil {
		t.Errorf("descendantPIDs(0) = %v, want nil", got)
	}
}
