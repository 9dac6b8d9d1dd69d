package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

func TestCommandExecutor_EchoesInstruction(t *testing.T) {
	exec := NewCommandExecutor(`printf '%s/%s:' "$TEAMWORK_TEAM" "$TEAMWORK_TEAMMATE"; cat`)

	res, err := exec.Execute(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "demo/dev:" + testItem().Instruction
	if res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}
}

func TestCommandExecutor_FailureCarriesStderr(t *testing.T) {
	exec := NewCommandExecutor(`echo "rate limit exceeded" >&2; exit 3`)

	_, err := exec.Execute(context.Background(), testItem())
	if err == nil {
		t.Fatal("Execute() should fail on non-zero exit")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error = %v, want stderr in message", err)
	}
	if !errors.IsTransient(err) {
		t.Error("a rate limit failure should be transient")
	}
}

func TestCommandExecutor_EmptyCommand(t *testing.T) {
	if _, err := NewCommandExecutor("  ").Execute(context.Background(), testItem()); err == nil {
		t.Error("Execute() with an empty command should fail")
	}
}

func TestCommandExecutor_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCommandExecutor("sleep 5").Execute(ctx, testItem())
	if err == nil {
		t.Fatal("Execute() should fail when the context ends")
	}
}

func TestCommandExecutor_RunnerIntegration(t *testing.T) {
	r := NewRunner(Config{MaxConcurrency: 1, MaxAttempts: 1, MaxSteps: 1},
		WithExecutor(NewCommandExecutor("tr a-z A-Z")))

	item := testItem()
	item.Instruction = "shout"
	res, err := r.Run(context.Background(), item, protocol.ToolPolicy{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Output != "SHOUT" {
		t.Errorf("Output = %q, want %q", res.Output, "SHOUT")
	}
}

func TestTail(t *testing.T) {
	if got := tail("abcdef", 3); got != "...def" {
		t.Errorf("tail() = %q", got)
	}
	if got := tail("ab", 3); got != "ab" {
		t.Errorf("tail() = %q", got)
	}
}
