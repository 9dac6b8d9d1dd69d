package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model's request to run one tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Turn is one entry of the conversation passed to the model.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Reply is the model's answer to a conversation. A reply without tool calls
// ends the loop and its content is the result.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Model produces the next reply given the conversation and the tools on offer.
type Model interface {
	Next(ctx context.Context, history []Turn, tools []string) (Reply, error)
}

// ToolRunner lists and runs the tools a model may call.
type ToolRunner interface {
	Tools() []string
	Run(ctx context.Context, call ToolCall) (string, error)
}

// DefaultMaxSteps bounds a StepLoop built with a non-positive step count.
const DefaultMaxSteps = 8

// StepLoop executes a work item by letting a model call tools until it
// answers without any, or until MaxSteps turns have been taken.
type StepLoop struct {
	Model    Model
	Tools    ToolRunner
	Policy   protocol.ToolPolicy
	MaxSteps int
	Logger   *logging.Logger
}

// Execute implements Executor.
func (l *StepLoop) Execute(ctx context.Context, item protocol.WorkItem) (Result, error) {
	if l.Model == nil {
		return Result{}, errors.NewValidationError("step loop has no model")
	}
	logger := logging.OrNop(l.Logger).WithComponent("step-loop").With("work_id", item.WorkID)
	maxSteps := l.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	offered := l.offeredTools()
	history := []Turn{
		{Role: RoleSystem, Content: systemPrompt(item)},
		{Role: RoleUser, Content: item.Instruction},
	}

	for step := 1; step <= maxSteps; step++ {
		reply, err := l.Model.Next(ctx, history, offered)
		if err != nil {
			return Result{Steps: step}, errors.Wrapf(err, "model turn %d", step)
		}
		if len(reply.ToolCalls) == 0 {
			logger.Debug("step loop finished", "steps", step)
			return Result{Output: strings.TrimSpace(reply.Content), Steps: step}, nil
		}

		history = append(history, Turn{Role: RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			history = append(history, Turn{
				Role:       RoleTool,
				Content:    l.runTool(ctx, call, logger),
				ToolCallID: call.ID,
			})
		}
	}

	logger.Warn("step loop exhausted", "max_steps", maxSteps)
	return Result{Steps: maxSteps}, fmt.Errorf("no final answer after %d steps", maxSteps)
}

func (l *StepLoop) offeredTools() []string {
	if l.Tools == nil {
		return nil
	}
	var out []string
	for _, name := range l.Tools.Tools() {
		if l.Policy.Allows(name) {
			out = append(out, name)
		}
	}
	return out
}

// runTool returns the text fed back to the model; failures become text too
// so the model can recover.
func (l *StepLoop) runTool(ctx context.Context, call ToolCall, logger *logging.Logger) string {
	if l.Tools == nil || !l.Policy.Allows(call.Name) {
		logger.Info("tool call refused by policy", "tool", call.Name)
		return fmt.Sprintf("error: tool %q is not permitted", call.Name)
	}
	out, err := l.Tools.Run(ctx, call)
	if err != nil {
		logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	return out
}

func systemPrompt(item protocol.WorkItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a member of team %s.\n", item.Owner, item.TeamName)
	fmt.Fprintf(&sb, "Complete the work item %q and reply with the final result.", item.Title)
	if len(item.Payload) > 0 {
		if data, err := json.Marshal(item.Payload); err == nil {
			fmt.Fprintf(&sb, "\nContext: %s", data)
		}
	}
	return sb.String()
}
