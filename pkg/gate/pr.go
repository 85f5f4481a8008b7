package gate

import (
	"context"
	"fmt"
	"strings"

	"ctoengine/pkg/github"
	"ctoengine/pkg/tasks"
)

// prTitleLimit keeps generated titles within GitHub's comfortable display
// width.
const prTitleLimit = 70

// buildPRTitle derives a PR title from the task description.
func buildPRTitle(task *tasks.CodingTask) string {
	title := strings.TrimSpace(task.Description)
	if idx := strings.IndexAny(title, "\n.!?"); idx > 0 {
		title = title[:idx]
	}
	if len(title) > prTitleLimit {
		title = title[:prTitleLimit-3] + "..."
	}
	return title
}

// buildPRBody renders the PR description from the task and its result.
func buildPRBody(task *tasks.CodingTask, result *tasks.CodingResult) string {
	var sb strings.Builder

	sb.WriteString(task.Description)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.TaskID)
	if task.RelatedIssue > 0 {
		fmt.Fprintf(&sb, "Closes #%d\n", task.RelatedIssue)
	}

	if len(result.FilesChanged) > 0 {
		sb.WriteString("\nFiles changed:\n")
		for _, change := range result.FilesChanged {
			fmt.Fprintf(&sb, "- %s (%s)\n", change.Path, change.Status)
		}
	}

	if result.RetryCount > 0 {
		fmt.Fprintf(&sb, "\nPassed review after %d retry attempt(s).\n", result.RetryCount)
	}

	return sb.String()
}

// CreatePRIfApproved creates a draft PR for an approved result. The status
// check is deliberately repeated here: PR creation is the irreversible step,
// and a workflow bug upstream must not be able to publish unapproved changes.
func CreatePRIfApproved(ctx context.Context, client github.GitHubClient, task *tasks.CodingTask, result *tasks.CodingResult) (*github.PullRequest, error) {
	if result.Status != tasks.StatusApproved {
		return nil, fmt.Errorf("refusing to create PR for task %s with status %s", task.TaskID, result.Status)
	}
	if result.BranchName == "" {
		return nil, fmt.Errorf("approved result for task %s has no branch", task.TaskID)
	}

	pr, err := client.CreatePR(ctx, github.PRCreateOptions{
		Title: buildPRTitle(task),
		Body:  buildPRBody(task, result),
		Head:  result.BranchName,
		Base:  task.BaseBranch,
		Draft: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PR for task %s: %w", task.TaskID, err)
	}
	return pr, nil
}
