package execution

import (
	"context"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Result is the outcome of a successful execution.
type Result struct {
	Output string `json:"output"`
	// Steps is the number of model turns taken; 0 for injected executors.
	Steps int `json:"steps,omitempty"`
}

// Executor performs one work item. It may be slow and it may fail; errors
// whose message looks like a rate limit or timeout are retried by the Runner.
type Executor interface {
	Execute(ctx context.Context, item protocol.WorkItem) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, item protocol.WorkItem) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, item protocol.WorkItem) (Result, error) {
	return f(ctx, item)
}
