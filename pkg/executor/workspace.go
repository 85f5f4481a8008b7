package executor

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"ctoengine/pkg/config"
	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
	"ctoengine/pkg/utils"
)

// Workspace is a prepared host directory for a task, mounted into the coding
// container.
type Workspace struct {
	Dir        string
	Branch     string
	Persistent bool
}

// WorkspaceManager prepares repository checkouts per access strategy.
type WorkspaceManager struct {
	cfg    config.ExecutorConfig
	logger *logx.Logger
}

// NewWorkspaceManager creates a workspace manager.
func NewWorkspaceManager(cfg config.ExecutorConfig) *WorkspaceManager {
	return &WorkspaceManager{
		cfg:    cfg,
		logger: logx.NewLogger("workspace"),
	}
}

// runGit runs a git command in dir and returns combined output.
func (w *WorkspaceManager) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := osexec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	w.logger.Debug("git %s (in %s)", strings.Join(args, " "), dir)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, string(output))
	}
	return string(output), nil
}

// cloneURL returns the HTTPS clone URL for an owner/repo path. gh manages
// credentials, so plain HTTPS is enough.
func cloneURL(repository string) string {
	return fmt.Sprintf("https://github.com/%s.git", repository)
}

// Prepare sets up a workspace for the task's access mode and creates the
// working branch. The github_cli mode works through the host API and never
// reaches this.
func (w *WorkspaceManager) Prepare(ctx context.Context, task *tasks.CodingTask, mode tasks.RepoAccessMode) (*Workspace, error) {
	branch := BranchName(task)

	switch mode {
	case tasks.AccessGitHubCLI:
		return nil, fmt.Errorf("github_cli mode does not use a local workspace")

	case tasks.AccessCloneOnDemand:
		dir, err := os.MkdirTemp("", "cto-clone-"+utils.ShortID(task.TaskID)+"-")
		if err != nil {
			return nil, fmt.Errorf("failed to create clone directory: %w", err)
		}
		// Shallow clone keeps trivial and simple tasks fast on big repos.
		if _, err := w.runGit(ctx, "", "clone", "--depth", "1", "--single-branch",
			"--branch", task.BaseBranch, cloneURL(task.Repository), dir); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		if err := w.setupBranch(ctx, dir, branch); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		return &Workspace{Dir: dir, Branch: branch}, nil

	case tasks.AccessPersistentWorkspace:
		dir := filepath.Join(w.cfg.WorkspaceRoot, utils.SanitizeIdentifier(task.Repository))
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			// Reuse the clone; discard anything a previous task left behind.
			if _, err := w.runGit(ctx, dir, "fetch", "origin", task.BaseBranch); err != nil {
				return nil, err
			}
			if _, err := w.runGit(ctx, dir, "checkout", task.BaseBranch); err != nil {
				return nil, err
			}
			if _, err := w.runGit(ctx, dir, "reset", "--hard", "origin/"+task.BaseBranch); err != nil {
				return nil, err
			}
			if _, err := w.runGit(ctx, dir, "clean", "-fd"); err != nil {
				return nil, err
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
				return nil, fmt.Errorf("failed to create workspace root: %w", err)
			}
			if _, err := w.runGit(ctx, "", "clone", "--branch", task.BaseBranch, cloneURL(task.Repository), dir); err != nil {
				return nil, err
			}
		}
		if err := w.setupBranch(ctx, dir, branch); err != nil {
			return nil, err
		}
		return &Workspace{Dir: dir, Branch: branch, Persistent: true}, nil

	default:
		return nil, fmt.Errorf("unknown repo access mode %q", mode)
	}
}

// setupBranch creates the working branch and configures the commit identity.
func (w *WorkspaceManager) setupBranch(ctx context.Context, dir, branch string) error {
	if _, err := w.runGit(ctx, dir, "checkout", "-B", branch); err != nil {
		return err
	}
	if _, err := w.runGit(ctx, dir, "config", "user.name", w.cfg.GitUserName); err != nil {
		return err
	}
	if _, err := w.runGit(ctx, dir, "config", "user.email", w.cfg.GitUserEmail); err != nil {
		return err
	}
	return nil
}

// CommitAndPush commits all staged and unstaged changes and pushes the
// branch. Returns the commit SHA, or "" when there was nothing to commit.
func (w *WorkspaceManager) CommitAndPush(ctx context.Context, ws *Workspace, message string) (string, error) {
	status, err := w.runGit(ctx, ws.Dir, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		return "", nil
	}

	if _, err := w.runGit(ctx, ws.Dir, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := w.runGit(ctx, ws.Dir, "commit", "-m", message); err != nil {
		return "", err
	}

	sha, err := w.runGit(ctx, ws.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	sha = strings.TrimSpace(sha)

	if _, err := w.runGit(ctx, ws.Dir, "push", "--force-with-lease", "origin", ws.Branch); err != nil {
		return "", err
	}

	w.logger.Info("Pushed %s to %s", sha, ws.Branch)
	return sha, nil
}

// DiffStat returns the numstat diff of the working branch against its base,
// used to enrich file change records.
func (w *WorkspaceManager) DiffStat(ctx context.Context, ws *Workspace, baseBranch string) (map[string][2]int, error) {
	output, err := w.runGit(ctx, ws.Dir, "diff", "--numstat", "origin/"+baseBranch)
	if err != nil {
		return nil, err
	}

	stats := make(map[string][2]int)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		var additions, deletions int
		// Binary files report "-"; leave the counters at zero.
		fmt.Sscanf(fields[0], "%d", &additions)
		fmt.Sscanf(fields[1], "%d", &deletions)
		stats[fields[2]] = [2]int{additions, deletions}
	}
	return stats, nil
}

// ChangedFiles lists the files touched in the workspace since branch
// creation, before commit. Untracked files count as added.
func (w *WorkspaceManager) ChangedFiles(ctx context.Context, ws *Workspace, baseBranch string) ([]tasks.FileChange, error) {
	output, err := w.runGit(ctx, ws.Dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var stats map[string][2]int
	if baseBranch != "" {
		stats, err = w.DiffStat(ctx, ws, baseBranch)
		if err != nil {
			// Untracked-only change sets have no numstat; names still matter.
			stats = nil
		}
	}

	var changes []tasks.FileChange
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])

		status := "modified"
		switch {
		case strings.Contains(code, "?") || strings.Contains(code, "A"):
			status = "added"
		case strings.Contains(code, "D"):
			status = "deleted"
		}

		change := tasks.FileChange{Path: path, Status: status}
		if stat, ok := stats[path]; ok {
			change.Additions = stat[0]
			change.Deletions = stat[1]
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// Cleanup removes an on-demand clone. Persistent workspaces are kept for
// reuse.
func (w *WorkspaceManager) Cleanup(ws *Workspace) {
	if ws == nil || ws.Dir == "" || ws.Persistent {
		return
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		w.logger.Warn("Failed to remove clone %s: %v", ws.Dir, err)
	}
}
