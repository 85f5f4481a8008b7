package executor

import (
	"context"
	"fmt"

	"ctoengine/pkg/tasks"
)

// MockExecutor applies a trivial deterministic change. Used in tests and
// offline smoke runs where no real agent is installed in the image.
type MockExecutor struct{}

// NewMockExecutor creates a mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AgentType identifies the agent.
func (e *MockExecutor) AgentType() tasks.AgentType {
	return tasks.AgentMock
}

// Execute writes a marker file into the workspace.
func (e *MockExecutor) Execute(ctx context.Context, runner Runner, in Input) (*Output, error) {
	script := fmt.Sprintf("echo %q >> TASK_NOTES.md", in.Task.Description)
	result, err := runner.RunCommand(ctx, in.Task.TaskID, []string{"sh", "-c", script}, nil, in.Timeout)
	if err != nil {
		return nil, err
	}
	return &Output{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		Duration: result.Duration,
	}, nil
}
