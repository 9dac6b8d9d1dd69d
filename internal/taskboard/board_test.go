package taskboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/teamwork/internal/dirlock"
	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

func testLocker() *dirlock.Locker {
	return &dirlock.Locker{
		Timeout:       10 * time.Second,
		StaleAfter:    30 * time.Second,
		RetryInterval: time.Millisecond,
	}
}

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	return New(t.TempDir(), WithLocker(testLocker()))
}

func mustCreate(t *testing.T, b *Board, subject string, blockedBy ...string) *protocol.Task {
	t.Helper()
	task, err := b.CreateTask(context.Background(), "demo", TaskInput{Subject: subject, BlockedBy: blockedBy})
	if err != nil {
		t.Fatalf("CreateTask(%s): %v", subject, err)
	}
	return task
}

func statusPtr(s protocol.TaskStatus) *protocol.TaskStatus { return &s }

func TestCreateTask_MintsSequentialIDs(t *testing.T) {
	b := newTestBoard(t)
	for i := 1; i <= 3; i++ {
		task := mustCreate(t, b, fmt.Sprintf("t%d", i))
		if task.ID != fmt.Sprint(i) {
			t.Errorf("task %d got id %s", i, task.ID)
		}
		if task.Status != protocol.TaskPending || !task.IsClaimable() {
			t.Errorf("new task = %+v", task)
		}
	}
	if _, err := os.Stat(filepath.Join(b.BoardDir("demo"), metaFileName)); err != nil {
		t.Errorf("meta file missing: %v", err)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	b := newTestBoard(t)
	mustCreate(t, b, "root")

	tests := []struct {
		name string
		in   TaskInput
		code errors.Code
	}{
		{"missing subject", TaskInput{Subject: "  "}, errors.CodeInvalidParam},
		{"unknown blocker", TaskInput{Subject: "x", BlockedBy: []string{"99"}}, errors.CodeNotFound},
		{"unknown blocks target", TaskInput{Subject: "x", Blocks: []string{"42"}}, errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.CreateTask(context.Background(), "demo", tt.in)
			if errors.CodeOf(err) != tt.code {
				t.Errorf("CodeOf() = %v, want %v", errors.CodeOf(err), tt.code)
			}
		})
	}

	// Failed creates must not mint ids or leave files behind.
	tasks, _ := b.ListTasks("demo", TaskFilter{})
	if len(tasks) != 1 {
		t.Errorf("tasks after failed creates = %d, want 1", len(tasks))
	}
	next := mustCreate(t, b, "next")
	if next.ID != "2" {
		t.Errorf("next id = %s, want 2", next.ID)
	}
}

func TestCreateTask_BidirectionalEdges(t *testing.T) {
	b := newTestBoard(t)
	a := mustCreate(t, b, "A")
	dep := mustCreate(t, b, "B", a.ID, a.ID) // duplicate edge is deduplicated

	if !slices.Equal(dep.BlockedBy, []string{a.ID}) {
		t.Errorf("B.BlockedBy = %v", dep.BlockedBy)
	}
	reloaded, _ := b.GetTask("demo", a.ID)
	if !slices.Contains(reloaded.Blocks, dep.ID) {
		t.Errorf("A.Blocks = %v, want to contain %s", reloaded.Blocks, dep.ID)
	}

	// Blocks on creation updates the target's blocked_by
	c := mustCreate(t, b, "C")
	gate, err := b.CreateTask(context.Background(), "demo", TaskInput{Subject: "gate", Blocks: []string{c.ID}})
	if err != nil {
		t.Fatal(err)
	}
	c, _ = b.GetTask("demo", c.ID)
	if !slices.Contains(c.BlockedBy, gate.ID) {
		t.Errorf("C.BlockedBy = %v, want %s", c.BlockedBy, gate.ID)
	}
}

func TestBlockedTask_NotClaimableUntilBlockerCompletes(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	a := mustCreate(t, b, "A")
	dep := mustCreate(t, b, "B", a.ID)

	claimed, err := b.ClaimNextTask(ctx, "demo", "dev")
	if err != nil || claimed.ID != a.ID {
		t.Fatalf("first claim = %+v, %v", claimed, err)
	}
	none, _ := b.ClaimNextTask(ctx, "demo", "dev")
	if none != nil {
		t.Fatalf("blocked task %s was claimed", none.ID)
	}

	if _, err := b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskCompleted)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	unblocked, _ := b.GetTask("demo", dep.ID)
	if len(unblocked.BlockedBy) != 0 {
		t.Errorf("B.BlockedBy after completion = %v", unblocked.BlockedBy)
	}
	next, _ := b.ClaimNextTask(ctx, "demo", "dev")
	if next == nil || next.ID != dep.ID {
		t.Errorf("claim after completion = %+v", next)
	}
}

func TestCompletion_UnblocksAllDependentsInOnePass(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	a := mustCreate(t, b, "A")
	other := mustCreate(t, b, "other")
	d1 := mustCreate(t, b, "d1", a.ID)
	d2 := mustCreate(t, b, "d2", a.ID, other.ID)
	d3 := mustCreate(t, b, "d3", a.ID)

	if _, err := b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskCompleted)}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{d1.ID, d2.ID, d3.ID} {
		task, _ := b.GetTask("demo", id)
		if slices.Contains(task.BlockedBy, a.ID) {
			t.Errorf("task %s still blocked by %s", id, a.ID)
		}
	}
	d2, _ = b.GetTask("demo", d2.ID)
	if !slices.Equal(d2.BlockedBy, []string{other.ID}) {
		t.Errorf("d2.BlockedBy = %v, want only %s", d2.BlockedBy, other.ID)
	}
}

func TestUpdateTask(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	a := mustCreate(t, b, "A")
	c := mustCreate(t, b, "C")

	got, err := b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskInProgress)})
	if err != nil {
		t.Fatal(err)
	}
	if got.ClaimedAt == nil {
		t.Fatal("claimed_at not stamped")
	}
	first := *got.ClaimedAt
	got, _ = b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskInProgress)})
	if !got.ClaimedAt.Equal(first) {
		t.Error("claimed_at must be stamped only once")
	}

	got, _ = b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskCanceled)})
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped on cancel")
	}

	// Graph extension through update
	got, err = b.UpdateTask(ctx, "demo", c.ID, TaskUpdate{AddBlocks: []string{a.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(got.Blocks, a.ID) {
		t.Errorf("C.Blocks = %v", got.Blocks)
	}
	a, _ = b.GetTask("demo", a.ID)
	if !slices.Contains(a.BlockedBy, c.ID) {
		t.Errorf("A.BlockedBy = %v", a.BlockedBy)
	}

	tests := []struct {
		name string
		id   string
		upd  TaskUpdate
		code errors.Code
	}{
		{"unknown task", "77", TaskUpdate{Subject: ptr("x")}, errors.CodeNotFound},
		{"bad status", a.ID, TaskUpdate{Status: statusPtr("done")}, errors.CodeInvalidParam},
		{"blank subject", a.ID, TaskUpdate{Subject: ptr("")}, errors.CodeInvalidParam},
		{"self edge", a.ID, TaskUpdate{AddBlockedBy: []string{a.ID}}, errors.CodeInvalidParam},
		{"unknown edge", a.ID, TaskUpdate{AddBlockedBy: []string{"55"}}, errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.UpdateTask(ctx, "demo", tt.id, tt.upd)
			if errors.CodeOf(err) != tt.code {
				t.Errorf("CodeOf() = %v, want %v", errors.CodeOf(err), tt.code)
			}
		})
	}
}

func ptr(s string) *string { return &s }

func TestCompletedBlockerDoesNotBlock(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	a := mustCreate(t, b, "A")
	_, _ = b.UpdateTask(ctx, "demo", a.ID, TaskUpdate{Status: statusPtr(protocol.TaskCompleted)})

	dep := mustCreate(t, b, "late", a.ID)
	if len(dep.BlockedBy) != 0 || !dep.IsClaimable() {
		t.Errorf("task depending on a completed task should be claimable: %+v", dep)
	}
}

func TestReleaseTask(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	a := mustCreate(t, b, "A")

	if _, err := b.ReleaseTask(ctx, "demo", a.ID); errors.CodeOf(err) != errors.CodeConflict {
		t.Errorf("release of pending task code = %v, want CONFLICT", errors.CodeOf(err))
	}
	_, _ = b.ClaimNextTask(ctx, "demo", "dev")
	got, err := b.ReleaseTask(ctx, "demo", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsClaimable() || got.ClaimedAt != nil {
		t.Errorf("released task = %+v", got)
	}
}

func TestListTasksAndCounts(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	for i := range 11 {
		mustCreate(t, b, fmt.Sprintf("t%d", i))
	}
	_, _ = b.ClaimNextTask(ctx, "demo", "dev")

	all, _ := b.ListTasks("demo", TaskFilter{})
	if len(all) != 11 || all[9].ID != "10" || all[10].ID != "11" {
		t.Errorf("tasks not in numeric id order")
	}
	mine, _ := b.ListTasks("demo", TaskFilter{Owner: "dev"})
	if len(mine) != 1 || mine[0].ID != "1" {
		t.Errorf("owner filter = %v", mine)
	}
	claimable, _ := b.ListTasks("demo", TaskFilter{ClaimableOnly: true})
	if len(claimable) != 10 {
		t.Errorf("claimable = %d, want 10", len(claimable))
	}

	counts, _ := b.Counts("demo")
	if counts[protocol.TaskPending] != 10 || counts[protocol.TaskInProgress] != 1 || counts[protocol.TaskCompleted] != 0 {
		t.Errorf("Counts() = %v", counts)
	}

	empty, err := b.Counts("nobody")
	if err != nil || empty[protocol.TaskPending] != 0 {
		t.Errorf("Counts on missing board = %v, %v", empty, err)
	}
}

func TestDeleteBoard(t *testing.T) {
	b := newTestBoard(t)
	mustCreate(t, b, "A")
	if err := b.DeleteBoard(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(b.BoardDir("demo")); !os.IsNotExist(err) {
		t.Error("board dir should be removed")
	}
	if err := b.DeleteBoard(context.Background(), "demo"); err != nil {
		t.Errorf("deleting a missing board: %v", err)
	}
	// IDs restart after deletion
	if task := mustCreate(t, b, "again"); task.ID != "1" {
		t.Errorf("id after delete = %s, want 1", task.ID)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.GetTask("demo", "3"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("CodeOf() = %v, want NOT_FOUND", errors.CodeOf(err))
	}
	if _, err := b.GetTask("demo", "../../etc/passwd"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("traversal id should be NOT_FOUND, got %v", err)
	}
}

// claimConcurrently runs n claimers, each with its own Board instance over
// the same root, and returns the ids they won.
func claimConcurrently(t *testing.T, root string, n int) []string {
	t.Helper()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    []string
		starts = make(chan struct{})
	)
	for i := range n {
		wg.Go(func() {
			b := New(root, WithLocker(testLocker()))
			<-starts
			task, err := b.ClaimNextTask(context.Background(), "demo", fmt.Sprintf("dev%d", i))
			if err != nil {
				t.Errorf("ClaimNextTask: %v", err)
				return
			}
			if task != nil {
				mu.Lock()
				won = append(won, task.ID)
				mu.Unlock()
			}
		})
	}
	close(starts)
	wg.Wait()
	return won
}

func TestClaimNextTask_ConcurrentClaimers(t *testing.T) {
	tests := []struct {
		claimers, tasks int
	}{
		{8, 5},
		{3, 6},
		{10, 10},
		{1, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("N%d_M%d", tt.claimers, tt.tasks), func(t *testing.T) {
			root := t.TempDir()
			b := New(root, WithLocker(testLocker()))
			for i := range tt.tasks {
				mustCreate(t, b, fmt.Sprintf("t%d", i))
			}

			won := claimConcurrently(t, root, tt.claimers)

			want := min(tt.claimers, tt.tasks)
			if len(won) != want {
				t.Errorf("winners = %d, want %d", len(won), want)
			}
			seen := map[string]bool{}
			for _, id := range won {
				if seen[id] {
					t.Errorf("task %s claimed twice", id)
				}
				seen[id] = true
			}

			inProgress, _ := b.ListTasks("demo", TaskFilter{Status: protocol.TaskInProgress})
			if len(inProgress) != want {
				t.Errorf("in_progress on disk = %d, want %d", len(inProgress), want)
			}
		})
	}
}
