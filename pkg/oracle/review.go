package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
	"ctoengine/pkg/utils"
)

// Review verdicts.
const (
	VerdictApprove        = "APPROVE"
	VerdictRequestChanges = "REQUEST_CHANGES"
	VerdictComment        = "COMMENT"
)

// Review is the oracle's quality-gate judgment on a set of changes.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Review struct {
	Verdict  string   `json:"verdict"`
	Summary  string   `json:"summary"`
	Comments []string `json:"comments"`

	// SecurityIssues are reviewer findings that block approval outright.
	SecurityIssues []string `json:"security_issues,omitempty"`

	TokensUsed int `json:"-"`
}

// Passed reports whether the review allows the changes through the gate.
// COMMENT is non-blocking.
func (r *Review) Passed() bool {
	return r.Verdict == VerdictApprove || r.Verdict == VerdictComment
}

// Reviewer asks the oracle to judge generated changes before PR creation.
type Reviewer struct {
	client       Client
	logger       *logx.Logger
	tokenCounter *utils.TokenCounter
	maxTokens    int
	promptBudget int
}

// NewReviewer creates a reviewer. promptBudget bounds the diff context in
// tokens; oversized diffs are truncated rather than rejected.
func NewReviewer(client Client, tokenCounter *utils.TokenCounter, maxTokens, promptBudget int) *Reviewer {
	return &Reviewer{
		client:       client,
		logger:       logx.NewLogger("oracle"),
		tokenCounter: tokenCounter,
		maxTokens:    maxTokens,
		promptBudget: promptBudget,
	}
}

// ReviewChanges judges the changes produced for a task.
func (r *Reviewer) ReviewChanges(ctx context.Context, task *tasks.CodingTask, changes []tasks.FileChange, diffContext string) (*Review, error) {
	if r.promptBudget > 0 {
		diffContext = r.tokenCounter.TruncateToTokenLimit(diffContext, r.promptBudget)
	}

	resp, err := r.client.Complete(ctx, Request{
		System:    reviewSystemPrompt,
		Prompt:    buildReviewPrompt(task, changes, diffContext),
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return nil, logx.Wrap(err, "review request failed")
	}

	raw := ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("review response contained no JSON: %q", resp.Content)
	}

	var review Review
	if err := json.Unmarshal([]byte(raw), &review); err != nil {
		return nil, fmt.Errorf("failed to parse review: %w", err)
	}

	switch review.Verdict {
	case VerdictApprove, VerdictRequestChanges, VerdictComment:
	default:
		return nil, fmt.Errorf("review returned unknown verdict %q", review.Verdict)
	}

	// A security finding overrides whatever verdict the model picked.
	if len(review.SecurityIssues) > 0 && review.Verdict != VerdictRequestChanges {
		r.logger.Warn("Task %s: security issues reported, forcing REQUEST_CHANGES", task.TaskID)
		review.Verdict = VerdictRequestChanges
		review.Comments = append(review.Comments, review.SecurityIssues...)
	}
	review.TokensUsed = resp.TokensUsed

	r.logger.Info("Reviewed task %s: %s", task.TaskID, review.Verdict)
	return &review, nil
}
