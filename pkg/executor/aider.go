package executor

import (
	"context"
	"fmt"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
)

// AiderExecutor drives aider in scripted mode inside the task container.
// Used for cost-sensitive simple tasks.
type AiderExecutor struct {
	logger *logx.Logger
}

// NewAiderExecutor creates an aider executor.
func NewAiderExecutor() *AiderExecutor {
	return &AiderExecutor{logger: logx.NewLogger("aider")}
}

// AgentType identifies the agent.
func (e *AiderExecutor) AgentType() tasks.AgentType {
	return tasks.AgentAider
}

// buildAiderCommand assembles the scripted invocation for a task. Commits are
// handled by the workspace layer, not aider.
func buildAiderCommand(prompt string) []string {
	return []string{"aider", "--message", prompt, "--yes-always", "--no-auto-commits"}
}

// Execute runs one attempt.
func (e *AiderExecutor) Execute(ctx context.Context, runner Runner, in Input) (*Output, error) {
	prompt := buildAgentPrompt(in.Task, in.Feedback)

	e.logger.Info("Running aider for task %s", in.Task.TaskID)

	result, err := runner.RunCommand(ctx, in.Task.TaskID, buildAiderCommand(prompt), nil, in.Timeout)
	if err != nil {
		return &Output{
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			ExitCode: result.ExitCode,
			Duration: result.Duration,
		}, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("aider exited with code %d: %s", result.ExitCode, result.Stderr)
	}

	return &Output{
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		TokensUsed: len(prompt+result.Stdout) / 4,
		Duration:   result.Duration,
	}, nil
}
