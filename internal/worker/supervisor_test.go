package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

func fastConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, IdleTimeout: 0}
}

func idlePoll(context.Context) (bool, error) { return false, nil }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSupervisor_StartIsIdempotent(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	var polls atomic.Int32
	poll := func(context.Context) (bool, error) {
		polls.Add(1)
		return false, nil
	}

	if !s.Start("demo", "dev", poll) {
		t.Fatal("first Start should launch a worker")
	}
	for range 10 {
		if s.Start("demo", "dev", poll) {
			t.Fatal("Start on a live key must be a no-op")
		}
	}
	if got := len(s.Snapshot("demo")); got != 1 {
		t.Errorf("Snapshot has %d workers, want 1", got)
	}
	waitFor(t, time.Second, func() bool { return polls.Load() > 0 })
}

func TestSupervisor_ConcurrentStart(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	var started atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Go(func() {
			if s.Start("demo", "dev", idlePoll) {
				started.Add(1)
			}
		})
	}
	wg.Wait()

	if started.Load() != 1 {
		t.Errorf("%d concurrent Starts launched a worker, want 1", started.Load())
	}
}

func TestWorker_StateMachine(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	var busy atomic.Bool
	busy.Store(true)
	var n atomic.Int32
	poll := func(context.Context) (bool, error) {
		if busy.Load() && n.Add(1) < 3 {
			return true, nil
		}
		busy.Store(false)
		return false, nil
	}

	s.Start("demo", "dev", poll)
	waitFor(t, time.Second, func() bool {
		st, ok := s.Get("demo", "dev")
		return ok && st.State == protocol.WorkerIdle
	})

	st, _ := s.Get("demo", "dev")
	if st.LastActive.Before(st.StartedAt) {
		t.Errorf("LastActive %v before StartedAt %v", st.LastActive, st.StartedAt)
	}
	if !s.IsLive("demo", "dev") {
		t.Error("idle worker should still be live")
	}
}

func TestWorker_IdleTimeoutRetires(t *testing.T) {
	hub := event.NewHub(100, nil)
	s := NewSupervisor(Config{PollInterval: 5 * time.Millisecond, IdleTimeout: 30 * time.Millisecond},
		WithEmitter(hub))
	defer s.Close(time.Second)

	s.Start("demo", "dev", idlePoll)
	waitFor(t, 2*time.Second, func() bool { return !s.IsLive("demo", "dev") })

	if _, ok := s.Get("demo", "dev"); ok {
		t.Error("retired worker should be unregistered")
	}

	var stopped bool
	for _, rec := range hub.Drain("demo") {
		if rec.Type == protocol.EventWorkerStopped && rec.Payload["reason"] == "idle" {
			stopped = true
		}
	}
	if !stopped {
		t.Error("expected a worker_stopped event with reason idle")
	}

	// A retired teammate can be started again.
	if !s.Start("demo", "dev", idlePoll) {
		t.Error("Start after retirement should launch a new worker")
	}
}

func TestWorker_BusyWorkerDoesNotRetire(t *testing.T) {
	s := NewSupervisor(Config{PollInterval: 5 * time.Millisecond, IdleTimeout: 20 * time.Millisecond})
	defer s.Close(time.Second)

	poll := func(context.Context) (bool, error) {
		time.Sleep(5 * time.Millisecond)
		return true, nil
	}
	s.Start("demo", "dev", poll)
	time.Sleep(80 * time.Millisecond)

	if !s.IsLive("demo", "dev") {
		t.Error("a worker doing work must not retire")
	}
}

func TestWorker_PollErrorsAndPanicsAreContained(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	var calls atomic.Int32
	poll := func(context.Context) (bool, error) {
		switch calls.Add(1) {
		case 1:
			return true, fmt.Errorf("inbox unreadable")
		case 2:
			panic("bad work item")
		default:
			return false, nil
		}
	}

	s.Start("demo", "dev", poll)
	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
	if !s.IsLive("demo", "dev") {
		t.Error("worker should survive poll errors and panics")
	}
}

func TestWorker_StopWaitsForInFlightPoll(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	poll := func(ctx context.Context) (bool, error) {
		once.Do(func() {
			close(entered)
			<-release
			finished.Store(true)
		})
		return false, nil
	}

	s.Start("demo", "dev", poll)
	<-entered

	if !s.Stop("demo", "dev") {
		t.Fatal("Stop should find the live worker")
	}
	if !s.IsLive("demo", "dev") {
		t.Error("worker must keep running until its poll returns")
	}
	close(release)

	waitFor(t, time.Second, func() bool { return !s.IsLive("demo", "dev") })
	if !finished.Load() {
		t.Error("in-flight poll was not allowed to finish")
	}
}

func TestSupervisor_StopTeam(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	for _, name := range []string{"dev1", "dev2", "dev3"} {
		s.Start("demo", name, idlePoll)
	}
	s.Start("other", "dev1", idlePoll)

	if err := s.StopTeam("demo", time.Second); err != nil {
		t.Fatalf("StopTeam() error = %v", err)
	}
	if got := len(s.Snapshot("demo")); got != 0 {
		t.Errorf("demo still has %d workers", got)
	}
	if !s.IsLive("other", "dev1") {
		t.Error("StopTeam must not touch other teams")
	}
}

func TestSupervisor_StopTeamJoinTimeout(t *testing.T) {
	s := NewSupervisor(fastConfig())

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	s.Start("demo", "slow", func(context.Context) (bool, error) {
		once.Do(func() { close(entered) })
		<-release
		return false, nil
	})
	<-entered

	err := s.StopTeam("demo", 20*time.Millisecond)
	if errors.CodeOf(err) != errors.CodeConflict {
		t.Errorf("CodeOf(err) = %v, want CONFLICT (err=%v)", errors.CodeOf(err), err)
	}

	close(release)
	if err := s.Close(time.Second); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSupervisor_StartWhileStoppingSchedulesReplacement(t *testing.T) {
	s := NewSupervisor(fastConfig())
	defer s.Close(time.Second)

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	s.Start("demo", "dev", func(context.Context) (bool, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return false, nil
	})
	<-entered
	s.Stop("demo", "dev")

	var replaced atomic.Bool
	if s.Start("demo", "dev", func(context.Context) (bool, error) {
		replaced.Store(true)
		return false, nil
	}) {
		t.Fatal("Start must not run two loops for one teammate")
	}
	close(release)

	waitFor(t, time.Second, func() bool { return replaced.Load() })
	if !s.IsLive("demo", "dev") {
		t.Error("replacement worker should be live")
	}
}

func TestSupervisor_Wake(t *testing.T) {
	s := NewSupervisor(Config{PollInterval: time.Hour})
	defer s.Close(time.Second)

	var polls atomic.Int32
	s.Start("demo", "dev", func(context.Context) (bool, error) {
		polls.Add(1)
		return false, nil
	})
	waitFor(t, time.Second, func() bool { return polls.Load() == 1 })

	if !s.Wake("demo", "dev") {
		t.Fatal("Wake should find the worker")
	}
	waitFor(t, time.Second, func() bool { return polls.Load() == 2 })

	if s.Wake("demo", "ghost") {
		t.Error("Wake of unknown worker should report false")
	}
}

func TestSupervisor_CloseRejectsNewWorkers(t *testing.T) {
	s := NewSupervisor(fastConfig())
	s.Start("demo", "dev", idlePoll)
	if err := s.Close(time.Second); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.Start("demo", "dev", idlePoll) {
		t.Error("Start after Close should be refused")
	}
}

func liveWorkersExposition(n int) string {
	return fmt.Sprintf(`
# HELP teamwork_live_workers Teammate workers currently running
# TYPE teamwork_live_workers gauge
teamwork_live_workers{team="demo"} %d
`, n)
}

func TestSupervisor_LiveWorkerGauge(t *testing.T) {
	m := metrics.NewCollector()
	s := NewSupervisor(fastConfig(), WithMetrics(m))

	s.Start("demo", "dev1", idlePoll)
	s.Start("demo", "dev2", idlePoll)
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(liveWorkersExposition(2)),
		"teamwork_live_workers"); err != nil {
		t.Error(err)
	}

	if err := s.Close(time.Second); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(liveWorkersExposition(0)),
		"teamwork_live_workers"); err != nil {
		t.Error(err)
	}
}
