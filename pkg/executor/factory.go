package executor

import (
	"fmt"

	"ctoengine/pkg/tasks"
)

// NewExecutor returns the executor for an agent type.
func NewExecutor(agent tasks.AgentType) (Executor, error) {
	switch agent {
	case tasks.AgentClaudeCode:
		return NewClaudeCodeExecutor(), nil
	case tasks.AgentAider:
		return NewAiderExecutor(), nil
	case tasks.AgentMock:
		return NewMockExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", agent)
	}
}

// SelectAgent picks the agent for a task. Cost-sensitive simple work goes to
// aider; everything else uses the configured default.
func SelectAgent(task *tasks.CodingTask, complexity tasks.Complexity, defaultAgent string) tasks.AgentType {
	if complexity == tasks.ComplexityTrivial || complexity == tasks.ComplexitySimple {
		if task.CostSensitivity == "high" {
			return tasks.AgentAider
		}
	}
	return tasks.AgentType(defaultAgent)
}
