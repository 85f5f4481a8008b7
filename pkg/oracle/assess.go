package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
)

// Assessment is the oracle's complexity judgment for a task.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Assessment struct {
	Complexity      tasks.Complexity `json:"complexity"`
	EstimatedFiles  int              `json:"estimated_files"`
	RequiresTesting bool             `json:"requires_testing"`
	RiskLevel       string           `json:"risk_level"`
	Reasoning       string           `json:"reasoning"`

	// ImplementationSteps outlines the approach; passed to the agent as
	// context, never enforced.
	ImplementationSteps []string `json:"implementation_steps,omitempty"`

	// TokensUsed records provider usage for cost accounting.
	TokensUsed int `json:"-"`
}

// Assessor asks the oracle to rate task complexity before routing.
type Assessor struct {
	client    Client
	logger    *logx.Logger
	maxTokens int
}

// NewAssessor creates an assessor on top of an oracle client.
func NewAssessor(client Client, maxTokens int) *Assessor {
	return &Assessor{
		client:    client,
		logger:    logx.NewLogger("oracle"),
		maxTokens: maxTokens,
	}
}

// AssessTask rates a task's complexity. The caller decides how to handle an
// error; falling back to the task's declared complexity is the usual choice.
func (a *Assessor) AssessTask(ctx context.Context, task *tasks.CodingTask) (*Assessment, error) {
	resp, err := a.client.Complete(ctx, Request{
		System:    assessmentSystemPrompt,
		Prompt:    buildAssessmentPrompt(task),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, logx.Wrap(err, "assessment request failed")
	}

	raw := ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("assessment response contained no JSON: %q", resp.Content)
	}

	var assessment Assessment
	if err := json.Unmarshal([]byte(raw), &assessment); err != nil {
		return nil, fmt.Errorf("failed to parse assessment: %w", err)
	}

	if !validComplexity(assessment.Complexity) {
		return nil, fmt.Errorf("assessment returned unknown complexity %q", assessment.Complexity)
	}
	if assessment.EstimatedFiles < 1 {
		assessment.EstimatedFiles = 1
	}
	assessment.TokensUsed = resp.TokensUsed

	a.logger.Info("Assessed task %s as %s (%d files)", task.TaskID, assessment.Complexity, assessment.EstimatedFiles)
	return &assessment, nil
}

func validComplexity(c tasks.Complexity) bool {
	switch c {
	case tasks.ComplexityTrivial, tasks.ComplexitySimple, tasks.ComplexityModerate,
		tasks.ComplexityComplex, tasks.ComplexityVeryComplex:
		return true
	}
	return false
}
