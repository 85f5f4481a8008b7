// Package gate implements the quality gate between execution and PR
// creation. Changes only become a pull request after an explicit APPROVE,
// with a bounded retry budget for rejected attempts.
package gate

import (
	"context"
	"fmt"

	"ctoengine/pkg/logx"
	"ctoengine/pkg/oracle"
	"ctoengine/pkg/tasks"
)

// NoChangesMessage is the review comment used when an attempt produced no
// file changes. Empty output must fail the gate rather than sail through as
// a trivially clean diff.
const NoChangesMessage = "no files were modified"

// Gate evaluates execution attempts.
type Gate struct {
	reviewer *oracle.Reviewer
	logger   *logx.Logger
}

// New creates a quality gate on top of a reviewer.
func New(reviewer *oracle.Reviewer) *Gate {
	return &Gate{
		reviewer: reviewer,
		logger:   logx.NewLogger("gate"),
	}
}

// Evaluate reviews an attempt's changes. An attempt that modified nothing is
// failed immediately without consulting the oracle.
func (g *Gate) Evaluate(ctx context.Context, task *tasks.CodingTask, changes []tasks.FileChange, diffContext string) (*oracle.Review, error) {
	if len(changes) == 0 {
		g.logger.Warn("Task %s produced no changes, failing gate", task.TaskID)
		return &oracle.Review{
			Verdict:  oracle.VerdictRequestChanges,
			Summary:  NoChangesMessage,
			Comments: []string{NoChangesMessage},
		}, nil
	}

	return g.reviewer.ReviewChanges(ctx, task, changes, diffContext)
}

// Outcome is the gate's routing decision after a review.
type Outcome struct {
	NextStatus tasks.Status
	Retry      bool
	Reason     string
}

// Decide routes a reviewed attempt: approve, retry, or reject once the retry
// budget is exhausted. The caller increments RetryCount when Retry is set;
// the count must survive into the next attempt or the loop never terminates.
func Decide(task *tasks.CodingTask, result *tasks.CodingResult, review *oracle.Review) Outcome {
	if review.Passed() {
		return Outcome{NextStatus: tasks.StatusApproved, Reason: review.Summary}
	}

	if result.RetryCount < task.MaxRetries {
		return Outcome{
			NextStatus: tasks.StatusExecuting,
			Retry:      true,
			Reason:     fmt.Sprintf("retry %d of %d: %s", result.RetryCount+1, task.MaxRetries, review.Summary),
		}
	}

	return Outcome{
		NextStatus: tasks.StatusRejected,
		Reason:     fmt.Sprintf("quality gate failed after %d retries", task.MaxRetries),
	}
}
