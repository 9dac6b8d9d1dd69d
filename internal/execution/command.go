package execution

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// stderrTail bounds how much of a failed command's stderr ends up in the
// work item's error.
const stderrTail = 400

// CommandExecutor runs a shell command per work item. The instruction is fed
// on stdin and trimmed stdout becomes the output. The item's identity is
// exported as TEAMWORK_TEAM, TEAMWORK_TEAMMATE, TEAMWORK_WORK_ID and
// TEAMWORK_TITLE.
//
// A non-zero exit fails the item with the tail of stderr as the message, so a
// command that reports "rate limit" or "timeout" is retried by the Runner.
type CommandExecutor struct {
	// Command is run with "sh -c".
	Command string
	// Dir is the working directory; empty inherits the caller's.
	Dir string
}

// NewCommandExecutor returns an executor for command.
func NewCommandExecutor(command string) *CommandExecutor {
	return &CommandExecutor{Command: command}
}

// Execute runs the command for item.
func (c *CommandExecutor) Execute(ctx context.Context, item protocol.WorkItem) (Result, error) {
	if strings.TrimSpace(c.Command) == "" {
		return Result{}, errors.NewValidationError("execution command is empty")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.Dir = c.Dir
	cmd.Stdin = strings.NewReader(item.Instruction)
	cmd.Env = append(os.Environ(),
		"TEAMWORK_TEAM="+item.TeamName,
		"TEAMWORK_TEAMMATE="+item.Owner,
		"TEAMWORK_WORK_ID="+item.WorkID,
		"TEAMWORK_TITLE="+item.Title,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Result{}, fmt.Errorf("command failed: %w", err)
		}
		return Result{}, fmt.Errorf("command failed: %w: %s", err, tail(msg, stderrTail))
	}
	return Result{Output: strings.TrimSpace(stdout.String())}, nil
}

// tail keeps the last n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return "..." + string(runes[len(runes)-n:])
}

var _ Executor = (*CommandExecutor)(nil)
