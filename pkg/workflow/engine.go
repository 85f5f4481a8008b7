// Package workflow drives coding tasks through the execution state machine:
// safety validation, complexity assessment, strategy selection, sandboxed
// execution, the quality gate retry loop, and finalization.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ctoengine/pkg/config"
	"ctoengine/pkg/executor"
	"ctoengine/pkg/gate"
	"ctoengine/pkg/github"
	"ctoengine/pkg/logx"
	"ctoengine/pkg/metrics"
	"ctoengine/pkg/oracle"
	"ctoengine/pkg/persistence"
	"ctoengine/pkg/sandbox"
	"ctoengine/pkg/tasks"
)

// cleanupTimeout bounds forced environment removal after a failed or
// cancelled attempt.
const cleanupTimeout = 30 * time.Second

// Environments is the sandbox surface the engine needs. The sandbox manager
// satisfies this; tests substitute a fake.
type Environments interface {
	CreateEnvironment(ctx context.Context, taskID string, kind sandbox.EnvKind, opts sandbox.EnvOpts) (*sandbox.Environment, error)
	RunCommand(ctx context.Context, taskID string, cmd, env []string, timeout time.Duration) (sandbox.ExecResult, error)
	GetFileChanges(ctx context.Context, taskID string) ([]tasks.FileChange, error)
	Cleanup(ctx context.Context, taskID string, force bool) error
	CleanupStale(ctx context.Context, maxAge time.Duration) int
	ActiveCount() int
}

// Workspaces prepares and tears down repository checkouts.
type Workspaces interface {
	Prepare(ctx context.Context, task *tasks.CodingTask, mode tasks.RepoAccessMode) (*executor.Workspace, error)
	ChangedFiles(ctx context.Context, ws *executor.Workspace, baseBranch string) ([]tasks.FileChange, error)
	CommitAndPush(ctx context.Context, ws *executor.Workspace, message string) (string, error)
	Cleanup(ws *executor.Workspace)
}

// Assessor rates task complexity before routing.
type Assessor interface {
	AssessTask(ctx context.Context, task *tasks.CodingTask) (*oracle.Assessment, error)
}

// GitHubFactory builds a GitHub client for an owner/repo path.
type GitHubFactory func(repository string) (github.GitHubClient, error)

// Deps wires the engine's collaborators. Audit and Recorder are optional.
type Deps struct {
	Environments Environments
	Workspaces   Workspaces
	Assessor     Assessor
	Gate         *gate.Gate
	GitHub       GitHubFactory
	Audit        *persistence.Store
	Recorder     *metrics.Recorder
}

// Engine executes coding tasks end to end.
type Engine struct {
	cfg        config.Config
	envs       Environments
	workspaces Workspaces
	assessor   Assessor
	gate       *gate.Gate
	githubFor  GitHubFactory
	audit      *persistence.Store
	recorder   *metrics.Recorder
	results    *ResultStore
	logger     *logx.Logger

	// sem bounds concurrent task executions.
	sem chan struct{}

	// newExecutor is swapped in tests.
	newExecutor func(agent tasks.AgentType) (executor.Executor, error)
}

// NewEngine creates a workflow engine.
func NewEngine(cfg config.Config, deps Deps) *Engine {
	maxTasks := cfg.MaxConcurrentTasks
	if maxTasks <= 0 {
		maxTasks = 1
	}
	return &Engine{
		cfg:         cfg,
		envs:        deps.Environments,
		workspaces:  deps.Workspaces,
		assessor:    deps.Assessor,
		gate:        deps.Gate,
		githubFor:   deps.GitHub,
		audit:       deps.Audit,
		recorder:    deps.Recorder,
		results:     NewResultStore(),
		logger:      logx.NewLogger("workflow"),
		sem:         make(chan struct{}, maxTasks),
		newExecutor: executor.NewExecutor,
	}
}

// Results exposes the in-memory result registry.
func (e *Engine) Results() *ResultStore {
	return e.results
}

// GetStatus returns a snapshot of a task's result, or nil when the task is
// unknown.
func (e *Engine) GetStatus(taskID string) *tasks.CodingResult {
	result, ok := e.results.Get(taskID)
	if !ok {
		return nil
	}
	return result
}

// ExecuteTask runs a coding task through the full workflow and returns its
// finalized result. The returned error classifies the failure; the result is
// always valid and registered, even on error.
func (e *Engine) ExecuteTask(ctx context.Context, task *tasks.CodingTask) (*tasks.CodingResult, error) {
	task.ApplyDefaults()
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := tasks.NewResult(task.TaskID)
	// A resubmitted task continues against its previous retry budget and
	// keeps the accumulated error history.
	if prev, ok := e.results.Get(task.TaskID); ok && !prev.Status.IsTerminal() {
		result.CarryRetryState(prev)
	}
	e.results.Put(result)

	e.logger.Info("Task %s accepted for %s", task.TaskID, task.Repository)

	// Safety validation happens before any environment or clone exists, so
	// an unsafe task never touches infrastructure.
	safe, reason := task.IsSafeToExecute(e.cfg.Safety.DenylistPhrases)
	if !safe {
		e.recordDecision(ctx, task.TaskID, persistence.StageSafety, "rejected", reason)
		return e.fail(ctx, task, result, task.Complexity,
			newTaskError(ErrKindSafety, task.TaskID, errors.New(reason)))
	}
	e.recordDecision(ctx, task.TaskID, persistence.StageSafety, "safe", "")

	if err := e.setStatus(result, tasks.StatusAssessing); err != nil {
		return e.fail(ctx, task, result, task.Complexity, newTaskError(ErrKindInfra, task.TaskID, err))
	}

	complexity, estimatedFiles := e.assess(ctx, task, result)

	mode := executor.SelectAccessMode(task, complexity, estimatedFiles)
	agentType := executor.SelectAgent(task, complexity, e.cfg.Executor.DefaultAgent)
	result.RepoAccessMode = mode
	result.AgentType = agentType
	e.recordDecision(ctx, task.TaskID, persistence.StageStrategy, string(mode),
		fmt.Sprintf("agent=%s complexity=%s files=%d", agentType, complexity, estimatedFiles))

	agent, err := e.newExecutor(agentType)
	if err != nil {
		return e.fail(ctx, task, result, complexity, newTaskError(ErrKindInfra, task.TaskID, err))
	}

	var feedback []string
	for {
		if err := e.setStatus(result, tasks.StatusExecuting); err != nil {
			return e.fail(ctx, task, result, complexity, newTaskError(ErrKindInfra, task.TaskID, err))
		}

		review, aerr := e.runAttempt(ctx, task, result, agent, mode, complexity, feedback)
		if aerr != nil {
			return e.fail(ctx, task, result, complexity, aerr)
		}

		result.ReviewPassed = review.Passed()
		result.ReviewComments = review.Comments
		result.TokensUsed += review.TokensUsed
		if e.recorder != nil {
			e.recorder.ObserveVerdict(review.Verdict)
			e.recorder.ObserveTokens("review", review.TokensUsed)
		}

		outcome := gate.Decide(task, result, review)
		e.recordDecision(ctx, task.TaskID, persistence.StageGate, review.Verdict, outcome.Reason)

		if outcome.Retry {
			result.RetryCount++
			result.AppendError(outcome.Reason)
			e.results.Put(result)
			feedback = review.Comments
			if e.recorder != nil {
				e.recorder.ObserveRetry(task.Repository)
			}
			e.logger.Info("Task %s sent back for retry %d of %d", task.TaskID, result.RetryCount, task.MaxRetries)
			continue
		}

		if err := e.setStatus(result, outcome.NextStatus); err != nil {
			return e.fail(ctx, task, result, complexity, newTaskError(ErrKindInfra, task.TaskID, err))
		}
		if outcome.NextStatus == tasks.StatusRejected {
			result.AppendError(outcome.Reason)
		}
		break
	}

	return e.finalize(ctx, task, result, complexity)
}

// assess asks the oracle to rate the task, falling back to the declared
// complexity when the oracle is unreachable. Assessment failure is not fatal.
// Tasks declared trivial or simple keep their rating without an oracle call.
func (e *Engine) assess(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult) (tasks.Complexity, int) {
	if task.Complexity == tasks.ComplexityTrivial || task.Complexity == tasks.ComplexitySimple {
		e.recordDecision(ctx, task.TaskID, persistence.StageAssessment,
			string(task.Complexity), "declared rating accepted without assessment")
		return task.Complexity, task.EstimatedFiles
	}

	assessment, err := e.assessor.AssessTask(ctx, task)
	if err != nil {
		e.logger.Warn("Assessment for task %s failed, using declared complexity %s: %v",
			task.TaskID, task.Complexity, err)
		e.recordDecision(ctx, task.TaskID, persistence.StageAssessment,
			string(task.Complexity), "declared complexity fallback: "+err.Error())
		return task.Complexity, task.EstimatedFiles
	}

	result.TokensUsed += assessment.TokensUsed
	if e.recorder != nil {
		e.recorder.ObserveTokens("assessment", assessment.TokensUsed)
	}
	detail := assessment.Reasoning
	if len(assessment.ImplementationSteps) > 0 {
		detail += " | steps: " + strings.Join(assessment.ImplementationSteps, "; ")
	}
	e.recordDecision(ctx, task.TaskID, persistence.StageAssessment,
		string(assessment.Complexity), detail)
	return assessment.Complexity, assessment.EstimatedFiles
}

// runAttempt performs one execution attempt: workspace, environment, agent
// run, change capture, and review. The environment never outlives the
// attempt; removal is forced so a record lost mid-attempt cannot orphan a
// container. The gh CLI strategy takes a separate path with no container at
// all.
func (e *Engine) runAttempt(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult,
	agent executor.Executor, mode tasks.RepoAccessMode, complexity tasks.Complexity, feedback []string) (*oracle.Review, *TaskError) {

	if mode == tasks.AccessGitHubCLI {
		return e.runRemoteAttempt(ctx, task, result)
	}

	ws, err := e.workspaces.Prepare(ctx, task, mode)
	if err != nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, err)
	}
	defer e.workspaces.Cleanup(ws)
	result.BranchName = ws.Branch

	if _, err := e.envs.CreateEnvironment(ctx, task.TaskID, sandbox.EnvCoding, sandbox.EnvOpts{
		HostWorkDir: ws.Dir,
		Env:         e.containerEnv(task),
	}); err != nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if cerr := e.envs.Cleanup(cleanupCtx, task.TaskID, true); cerr != nil {
			e.logger.Error("Environment cleanup failed for task %s: %v", task.TaskID, cerr)
		}
	}()

	out, err := agent.Execute(ctx, e.envs, executor.Input{
		Task:     task,
		Feedback: feedback,
		Timeout:  task.Timeout(),
	})
	if out != nil {
		result.ExecutionTime += out.Duration.Seconds()
		result.TokensUsed += out.TokensUsed
		if e.recorder != nil {
			e.recorder.ObserveExecution(string(agent.AgentType()), string(complexity), out.Duration)
		}
	}
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) {
			return nil, newTaskError(ErrKindTimeout, task.TaskID,
				fmt.Errorf("attempt exceeded %ds budget: %w", task.TimeoutSeconds, err))
		}
		return nil, newTaskError(ErrKindExecution, task.TaskID, err)
	}

	changes, cerr := e.workspaces.ChangedFiles(ctx, ws, task.BaseBranch)
	if cerr != nil {
		e.logger.Warn("Workspace diff failed for task %s, falling back to container diff: %v", task.TaskID, cerr)
		changes, cerr = e.envs.GetFileChanges(ctx, task.TaskID)
		if cerr != nil {
			return nil, newTaskError(ErrKindInfra, task.TaskID, cerr)
		}
	}
	result.FilesChanged = changes

	if err := e.setStatus(result, tasks.StatusQualityGate); err != nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, err)
	}

	review, err := e.gate.Evaluate(ctx, task, changes, diffContext(changes))
	if err != nil {
		return nil, newTaskError(ErrKindReview, task.TaskID, err)
	}

	// Push only reviewed-and-passed work. The workspace is torn down when
	// this returns, so the push has to happen here. A failed push does not
	// sink the approval: the work survives in the result record and the
	// branch can be pushed by hand.
	if review.Passed() && ws.Dir != "" {
		sha, perr := e.workspaces.CommitAndPush(ctx, ws, commitMessage(task))
		switch {
		case perr != nil:
			e.logger.Warn("Push failed for task %s: %v", task.TaskID, perr)
			result.AppendError("push failed: " + perr.Error())
		case sha != "":
			result.CommitSHAs = append(result.CommitSHAs, sha)
		}
	}

	return review, nil
}

// runRemoteAttempt serves the gh CLI strategy. No container or local checkout
// is made: the working branch is cut from the tip of the base branch through
// the GitHub API and a draft PR carrying the task description is opened for
// host-side tooling to fill in. A retry reuses the branch and PR from the
// previous attempt.
func (e *Engine) runRemoteAttempt(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult) (*oracle.Review, *TaskError) {
	if e.githubFor == nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, errors.New("no GitHub client configured"))
	}
	client, err := e.githubFor(task.Repository)
	if err != nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, err)
	}

	branch := executor.BranchName(task)
	result.BranchName = branch

	exists, err := client.BranchExists(ctx, branch)
	if err != nil {
		return nil, newTaskError(ErrKindExecution, task.TaskID, fmt.Errorf("branch lookup failed: %w", err))
	}
	if !exists {
		sha, err := client.GetBranchSHA(ctx, task.BaseBranch)
		if err != nil {
			return nil, newTaskError(ErrKindExecution, task.TaskID,
				fmt.Errorf("cannot resolve %s: %w", task.BaseBranch, err))
		}
		if err := client.CreateBranch(ctx, branch, sha); err != nil {
			return nil, newTaskError(ErrKindExecution, task.TaskID,
				fmt.Errorf("branch creation failed: %w", err))
		}
		e.logger.Info("Created branch %s from %s for task %s", branch, task.BaseBranch, task.TaskID)
	}

	open, err := client.ListPRsForBranch(ctx, branch)
	if err != nil {
		return nil, newTaskError(ErrKindExecution, task.TaskID, err)
	}
	if len(open) > 0 {
		result.PRNumber = open[0].Number
		result.PRURL = open[0].URL
	} else {
		pr, err := client.CreatePR(ctx, github.PRCreateOptions{
			Title: prTitle(task),
			Body:  fmt.Sprintf("%s\n\nTask: %s", task.Description, task.TaskID),
			Head:  branch,
			Base:  task.BaseBranch,
			Draft: true,
		})
		if err != nil {
			return nil, newTaskError(ErrKindExecution, task.TaskID,
				fmt.Errorf("draft PR creation failed: %w", err))
		}
		result.PRNumber = pr.Number
		result.PRURL = pr.URL
		e.logger.Info("Opened draft PR #%d for task %s", pr.Number, task.TaskID)
	}

	if err := e.setStatus(result, tasks.StatusQualityGate); err != nil {
		return nil, newTaskError(ErrKindInfra, task.TaskID, err)
	}

	// The hand-off itself lands no changes; the gate judges whatever was
	// captured so far.
	review, err := e.gate.Evaluate(ctx, task, result.FilesChanged, "")
	if err != nil {
		return nil, newTaskError(ErrKindReview, task.TaskID, err)
	}
	return review, nil
}

// agentSecretNames are forwarded into coding containers when present. A
// missing key is not an error here; the agent CLI reports it on first use.
var agentSecretNames = []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GITHUB_TOKEN"}

// containerEnv assembles the container environment: agent credentials plus
// the task identity.
func (e *Engine) containerEnv(task *tasks.CodingTask) []string {
	env := []string{
		"CTO_TASK_ID=" + task.TaskID,
		"CTO_TASK_DESCRIPTION=" + task.Description,
	}
	for _, name := range agentSecretNames {
		if value, err := config.GetSecret(name); err == nil {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// fail marks the task FAILED and finalizes it. Environments are already gone
// by the time this runs: every attempt force-cleans its own environment on
// exit, and failures before the first attempt never created one. Failures
// never consume the quality gate retry budget.
func (e *Engine) fail(ctx context.Context, task *tasks.CodingTask, result *tasks.CodingResult,
	complexity tasks.Complexity, terr *TaskError) (*tasks.CodingResult, error) {

	e.logger.Error("Task %s failed: %v", task.TaskID, terr)
	result.AppendError(terr.Error())
	if err := e.setStatus(result, tasks.StatusFailed); err != nil {
		e.logger.Error("Forcing FAILED for task %s: %v", task.TaskID, err)
		result.Status = tasks.StatusFailed
		e.results.Put(result)
	}

	if _, ferr := e.finalize(ctx, task, result, complexity); ferr != nil {
		e.logger.Error("Finalization failed for task %s: %v", task.TaskID, ferr)
	}
	return result, terr
}

// setStatus applies a workflow transition, rejecting edges outside the table.
// Each transition publishes a fresh snapshot so concurrent status reads never
// touch the engine's working record.
func (e *Engine) setStatus(result *tasks.CodingResult, next tasks.Status) error {
	if err := tasks.ValidateTransition(result.Status, next); err != nil {
		return err
	}
	e.logger.Debug("Task %s: %s -> %s", result.TaskID, result.Status, next)
	result.Status = next
	e.results.Put(result)
	return nil
}

// recordDecision appends an audit record, tolerating a missing store.
func (e *Engine) recordDecision(ctx context.Context, taskID, stage, decision, detail string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordDecision(ctx, taskID, stage, decision, detail); err != nil {
		e.logger.Error("Failed to record %s decision for task %s: %v", stage, taskID, err)
	}
}

// diffContext assembles the reviewer's diff context from captured patches.
func diffContext(changes []tasks.FileChange) string {
	var sb strings.Builder
	for _, change := range changes {
		if change.Patch == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- %s (%s)\n%s\n", change.Path, change.Status, change.Patch)
	}
	return sb.String()
}

// commitMessage renders the commit message for a task's changes.
func commitMessage(task *tasks.CodingTask) string {
	subject := strings.TrimSpace(task.Description)
	if idx := strings.IndexByte(subject, '\n'); idx > 0 {
		subject = strings.TrimSpace(subject[:idx])
	}
	return fmt.Sprintf("%s\n\nTask: %s", subject, task.TaskID)
}

// prTitle renders a one-line PR title from the task description.
func prTitle(task *tasks.CodingTask) string {
	title := strings.TrimSpace(task.Description)
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if len(title) > 100 {
		title = title[:100] + "..."
	}
	return title
}
