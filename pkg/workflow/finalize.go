package workflow

import (
	"context"
	"fmt"

	"ctoengine/pkg/gate"
	"ctoengine/pkg/persistence"
	"ctoengine/pkg/tasks"
)

// finalize closes out a task that reached an outcome: approved work becomes a
// draft pull request, the outcome is persisted to the audit store, and the
// task transitions to COMPLETED.
func (e *Engine) finalize(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult,
	complexity tasks.Complexity) (*tasks.CodingResult, error) {

	if !result.Status.IsOutcome() {
		return result, fmt.Errorf("cannot finalize task %s in status %s", task.TaskID, result.Status)
	}
	result.Outcome = result.Status

	if result.Status == tasks.StatusApproved {
		// The gh CLI path opens its draft PR during execution; do not stack a
		// second one on the same branch.
		if result.PRNumber != 0 {
			e.recordDecision(ctx, task.TaskID, persistence.StageFinalize, "pr_exists", result.PRURL)
		} else if err := e.openPullRequest(ctx, task, result); err != nil {
			// The approval stands; the PR can be opened by hand from the
			// pushed branch. Record the failure and complete anyway.
			e.logger.Error("PR creation failed for task %s: %v", task.TaskID, err)
			result.AppendError(newTaskError(ErrKindFinalize, task.TaskID, err).Error())
			e.recordDecision(ctx, task.TaskID, persistence.StageFinalize, "pr_failed", err.Error())
		} else {
			e.recordDecision(ctx, task.TaskID, persistence.StageFinalize, "pr_created", result.PRURL)
		}
	}

	if err := e.setStatus(result, tasks.StatusCompleted); err != nil {
		return result, err
	}
	result.MarkCompleted()

	if e.recorder != nil {
		e.recorder.ObserveTask(string(result.Outcome), string(complexity), string(result.RepoAccessMode))
	}
	if e.audit != nil {
		if err := e.audit.SaveResult(ctx, result); err != nil {
			e.logger.Error("Failed to persist result for task %s: %v", task.TaskID, err)
		}
	}
	e.recordDecision(ctx, task.TaskID, persistence.StageFinalize, "completed", string(result.Outcome))
	e.results.Put(result)

	e.logger.Info("Task %s completed with outcome %s", task.TaskID, result.Outcome)
	return result, nil
}

// openPullRequest publishes approved changes as a draft PR and records the
// PR coordinates on the result.
func (e *Engine) openPullRequest(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult) error {
	if e.githubFor == nil {
		return fmt.Errorf("no GitHub client configured")
	}
	client, err := e.githubFor(task.Repository)
	if err != nil {
		return err
	}

	pr, err := gate.CreatePRIfApproved(ctx, client, task, result)
	if err != nil {
		return err
	}
	result.PRNumber = pr.Number
	result.PRURL = pr.URL
	return nil
}
