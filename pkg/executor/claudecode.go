package executor

import (
	"context"
	"fmt"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
)

// ClaudeCodeExecutor drives the claude CLI in headless mode inside the task
// container.
type ClaudeCodeExecutor struct {
	logger *logx.Logger
}

// NewClaudeCodeExecutor creates a claude-code executor.
func NewClaudeCodeExecutor() *ClaudeCodeExecutor {
	return &ClaudeCodeExecutor{logger: logx.NewLogger("claude-code")}
}

// AgentType identifies the agent.
func (e *ClaudeCodeExecutor) AgentType() tasks.AgentType {
	return tasks.AgentClaudeCode
}

// buildClaudeCommand assembles the headless invocation for a task.
func buildClaudeCommand(task *tasks.CodingTask, prompt string) []string {
	cmd := []string{"claude", "-p", prompt, "--output-format", "json"}
	if tools := allowedTools(task.AutonomyLevel); tools != "" {
		cmd = append(cmd, "--allowedTools", tools)
	} else {
		cmd = append(cmd, "--dangerously-skip-permissions")
	}
	return cmd
}

// Execute runs one attempt.
func (e *ClaudeCodeExecutor) Execute(ctx context.Context, runner Runner, in Input) (*Output, error) {
	prompt := buildAgentPrompt(in.Task, in.Feedback)
	cmd := buildClaudeCommand(in.Task, prompt)

	e.logger.Info("Running claude for task %s (autonomy: %s)", in.Task.TaskID, in.Task.AutonomyLevel)

	// API credentials are injected at container creation; a missing key is
	// surfaced by the CLI itself.
	result, err := runner.RunCommand(ctx, in.Task.TaskID, cmd, nil, in.Timeout)
	if err != nil {
		return &Output{
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: result.ExitCode,
			Duration: result.Duration,
		}, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("claude exited with code %d: %s", result.ExitCode, result.Stderr)
	}

	return &Output{
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		TokensUsed: len(prompt+result.Stdout) / 4, // estimate; CLI usage is not machine-readable here
		Duration:   result.Duration,
	}, nil
}
