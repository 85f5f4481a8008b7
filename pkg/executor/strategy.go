// Package executor prepares repository workspaces and drives change
// generation agents inside sandbox environments.
package executor

import (
	"ctoengine/pkg/tasks"
	"ctoengine/pkg/utils"
)

// githubCLIFileLimit is the largest simple change served without a local
// clone.
const githubCLIFileLimit = 3

// SelectAccessMode picks the repository access strategy for a task. An
// explicit override on the task always wins. The function is pure; identical
// inputs always select the same mode.
func SelectAccessMode(task *tasks.CodingTask, complexity tasks.Complexity, estimatedFiles int) tasks.RepoAccessMode {
	if task.RepoAccessMode != "" {
		return task.RepoAccessMode
	}

	switch complexity {
	case tasks.ComplexityTrivial, tasks.ComplexitySimple:
		if estimatedFiles <= githubCLIFileLimit {
			return tasks.AccessGitHubCLI
		}
		return tasks.AccessCloneOnDemand
	case tasks.ComplexityComplex, tasks.ComplexityVeryComplex:
		return tasks.AccessPersistentWorkspace
	default:
		return tasks.AccessCloneOnDemand
	}
}

// BranchName returns the working branch for a task: the explicit name when
// set, otherwise one synthesized from the task ID.
func BranchName(task *tasks.CodingTask) string {
	if task.BranchName != "" {
		return task.BranchName
	}
	return "cto/" + utils.ShortID(task.TaskID)
}
