// Package tasks defines the coding task and result model for the execution
// engine, including the workflow status state machine and safety validation.
package tasks

import (
	"fmt"
	"strings"
	"time"
)

// Complexity levels for routing coding tasks, ordered from cheapest to most
// involved.
type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"      // one-liner, config change
	ComplexitySimple      Complexity = "simple"       // small function, obvious implementation
	ComplexityModerate    Complexity = "moderate"     // multiple files, some design decisions
	ComplexityComplex     Complexity = "complex"      // significant feature, architectural impact
	ComplexityVeryComplex Complexity = "very_complex" // multi-component change
)

// AgentType identifies the change-generation tool driven inside the sandbox.
type AgentType string

const (
	AgentClaudeCode AgentType = "claude_code"
	AgentAider      AgentType = "aider"
	AgentMock       AgentType = "mock"
)

// AutonomyLevel is the human-oversight tier governing which tool capabilities
// the execution step is permitted to use.
type AutonomyLevel string

const (
	AutonomySupervised      AutonomyLevel = "supervised"       // read-only tools
	AutonomySemiAutonomous  AutonomyLevel = "semi_autonomous"  // read/write/execute/edit
	AutonomyFullyAutonomous AutonomyLevel = "fully_autonomous" // unrestricted
)

// RepoAccessMode is the repository access strategy for a coding task.
type RepoAccessMode string

const (
	AccessCloneOnDemand       RepoAccessMode = "clone_on_demand"      // fresh shallow clone per task
	AccessPersistentWorkspace RepoAccessMode = "persistent_workspace" // reuse long-lived clone
	AccessGitHubCLI           RepoAccessMode = "github_cli"           // remote API only, no local clone
)

// Task defaults.
const (
	DefaultBaseBranch     = "main"
	DefaultTimeoutSeconds = 300
	DefaultMaxRetries     = 2
)

// DefaultForbiddenPatterns are path globs that must never be modified by an
// execution environment, regardless of task configuration.
func DefaultForbiddenPatterns() []string {
	return []string{"*.env", "*.key", "*.pem", "secrets/*", ".aws/*", ".ssh/*"}
}

// CodingTask is the immutable input specification for a coding task.
// Created once by the caller and never mutated by the workflow.
//
//nolint:govet // Logical grouping preferred over memory optimization
type CodingTask struct {
	TaskID      string `json:"task_id" yaml:"task_id"`
	Description string `json:"description" yaml:"description"`
	Repository  string `json:"repository" yaml:"repository"` // owner/repo
	BaseBranch  string `json:"base_branch" yaml:"base_branch"`

	// Routing criteria.
	Complexity      Complexity    `json:"complexity" yaml:"complexity"`
	EstimatedFiles  int           `json:"estimated_files" yaml:"estimated_files"`
	RequiresTesting bool          `json:"requires_testing" yaml:"requires_testing"`
	CostSensitivity string        `json:"cost_sensitivity" yaml:"cost_sensitivity"` // low, medium, high
	AutonomyLevel   AutonomyLevel `json:"autonomy_level" yaml:"autonomy_level"`

	// Context.
	Context      map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
	RelatedIssue int               `json:"related_issue,omitempty" yaml:"related_issue,omitempty"`
	RelatedPR    int               `json:"related_pr,omitempty" yaml:"related_pr,omitempty"`
	BranchName   string            `json:"branch_name,omitempty" yaml:"branch_name,omitempty"`

	// Scope restrictions, enforced by the execution environment.
	AllowedPaths      []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`
	ForbiddenPatterns []string `json:"forbidden_patterns,omitempty" yaml:"forbidden_patterns,omitempty"`

	// Execution parameters.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int `json:"max_retries" yaml:"max_retries"`

	// Optional strategy override; auto-selected when empty.
	RepoAccessMode RepoAccessMode `json:"repo_access_mode,omitempty" yaml:"repo_access_mode,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ApplyDefaults fills zero-valued fields with task defaults.
func (t *CodingTask) ApplyDefaults() {
	if t.BaseBranch == "" {
		t.BaseBranch = DefaultBaseBranch
	}
	if t.Complexity == "" {
		t.Complexity = ComplexityModerate
	}
	if t.EstimatedFiles == 0 {
		t.EstimatedFiles = 1
	}
	if t.CostSensitivity == "" {
		t.CostSensitivity = "medium"
	}
	if t.AutonomyLevel == "" {
		t.AutonomyLevel = AutonomySemiAutonomous
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = DefaultMaxRetries
	}
	if len(t.ForbiddenPatterns) == 0 {
		t.ForbiddenPatterns = DefaultForbiddenPatterns()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

// Timeout returns the per-attempt execution budget as a duration.
func (t *CodingTask) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Validate checks structural requirements before the workflow accepts a task.
func (t *CodingTask) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if t.Description == "" {
		return fmt.Errorf("description is required")
	}
	if t.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if !strings.Contains(t.Repository, "/") {
		return fmt.Errorf("repository must be owner/repo, got %q", t.Repository)
	}
	return nil
}

// IsSafeToExecute checks whether a task may run without human supervision.
// The denylist match is a coarse case-insensitive substring check; false
// positives are acceptable. The phrase list is configuration, not a complete
// safety boundary.
func (t *CodingTask) IsSafeToExecute(denylist []string) (bool, string) {
	descLower := strings.ToLower(t.Description)
	for _, phrase := range denylist {
		if phrase == "" {
			continue
		}
		if strings.Contains(descLower, strings.ToLower(phrase)) {
			return false, fmt.Sprintf("task contains risky phrase: %s", phrase)
		}
	}

	if t.AutonomyLevel == AutonomySupervised {
		return false, "task requires supervised execution"
	}

	return true, "safe"
}
