package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ctoengine/pkg/sandbox"
	"ctoengine/pkg/tasks"
)

// Runner executes commands inside a task's sandbox environment. The sandbox
// manager satisfies this; tests substitute a fake.
type Runner interface {
	RunCommand(ctx context.Context, taskID string, cmd, env []string, timeout time.Duration) (sandbox.ExecResult, error)
}

// Input is everything an agent needs for one execution attempt.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Input struct {
	Task *tasks.CodingTask

	// Feedback carries reviewer comments from the previous attempt so the
	// agent can address them instead of repeating the same mistake.
	Feedback []string

	Timeout time.Duration
}

// Output is the raw outcome of one agent run.
type Output struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	TokensUsed int
	Duration   time.Duration
}

// Executor drives one change-generation agent inside the task's container.
type Executor interface {
	AgentType() tasks.AgentType
	Execute(ctx context.Context, runner Runner, in Input) (*Output, error)
}

// allowedTools maps an autonomy level to the tool set the agent may use.
// An empty string means unrestricted.
func allowedTools(level tasks.AutonomyLevel) string {
	switch level {
	case tasks.AutonomySupervised:
		return "read,view"
	case tasks.AutonomySemiAutonomous:
		return "read,view,write,bash,edit"
	case tasks.AutonomyFullyAutonomous:
		return ""
	default:
		return "read,view,write,bash,edit"
	}
}

// buildAgentPrompt renders the instruction given to the coding agent,
// including scope restrictions and prior review feedback.
func buildAgentPrompt(task *tasks.CodingTask, feedback []string) string {
	var sb strings.Builder

	sb.WriteString(task.Description)
	sb.WriteString("\n\nConstraints:\n")
	sb.WriteString("- Only modify files necessary for the task.\n")
	sb.WriteString("- Never touch credentials, secrets, or key material.\n")

	if len(task.AllowedPaths) > 0 {
		fmt.Fprintf(&sb, "- Restrict changes to: %s\n", strings.Join(task.AllowedPaths, ", "))
	}
	if len(task.ForbiddenPatterns) > 0 {
		fmt.Fprintf(&sb, "- Never modify paths matching: %s\n", strings.Join(task.ForbiddenPatterns, ", "))
	}
	if task.RequiresTesting {
		sb.WriteString("- Write or update tests for the change.\n")
	}

	if len(feedback) > 0 {
		sb.WriteString("\nYour previous attempt did not pass review. Address this feedback:\n")
		for _, comment := range feedback {
			fmt.Fprintf(&sb, "- %s\n", comment)
		}
	}

	return sb.String()
}
