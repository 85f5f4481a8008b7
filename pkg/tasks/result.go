package tasks

import "time"

// FileChange records a single file touched during an execution attempt.
type FileChange struct {
	Path      string `json:"path"`
	Status    string `json:"status"` // added, modified, deleted
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// CodingResult is the mutable outcome record for a coding task. One result
// exists per task; retries update it in place.
//
//nolint:govet // Logical grouping preferred over memory optimization
type CodingResult struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`

	// Outcome preserves the workflow outcome (APPROVED, REJECTED or FAILED)
	// after finalization moves Status to COMPLETED.
	Outcome Status `json:"outcome,omitempty"`

	// Output.
	BranchName   string       `json:"branch_name,omitempty"`
	CommitSHAs   []string     `json:"commit_shas,omitempty"`
	PRNumber     int          `json:"pr_number,omitempty"`
	PRURL        string       `json:"pr_url,omitempty"`
	FilesChanged []FileChange `json:"files_changed,omitempty"`

	// Execution record.
	AgentType      AgentType      `json:"agent_type,omitempty"`
	RepoAccessMode RepoAccessMode `json:"repo_access_mode,omitempty"`
	ExecutionTime  float64        `json:"execution_time_seconds"`
	TokensUsed     int            `json:"tokens_used"`
	CostEstimate   float64        `json:"cost_estimate"`

	// Quality gate record.
	ReviewPassed   bool     `json:"review_passed"`
	ReviewComments []string `json:"review_comments,omitempty"`
	RetryCount     int      `json:"retry_count"`

	// Error record, append-only across attempts.
	Errors []string `json:"errors,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewResult creates the initial result record for a task.
func NewResult(taskID string) *CodingResult {
	return &CodingResult{
		TaskID:    taskID,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy. Slices are duplicated so the clone and the
// original can be appended to independently.
func (r *CodingResult) Clone() *CodingResult {
	clone := *r
	clone.CommitSHAs = append([]string(nil), r.CommitSHAs...)
	clone.FilesChanged = append([]FileChange(nil), r.FilesChanged...)
	clone.ReviewComments = append([]string(nil), r.ReviewComments...)
	clone.Errors = append([]string(nil), r.Errors...)
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

// AppendError records an error message without discarding earlier ones.
func (r *CodingResult) AppendError(msg string) {
	if msg == "" {
		return
	}
	r.Errors = append(r.Errors, msg)
}

// CarryRetryState preserves the retry counter and error history from the
// previous attempt's result. Losing the counter between attempts turns the
// retry budget into an unbounded loop.
func (r *CodingResult) CarryRetryState(prev *CodingResult) {
	if prev == nil {
		return
	}
	r.RetryCount = prev.RetryCount
	r.Errors = append(r.Errors, prev.Errors...)
}

// MarkCompleted stamps the completion time.
func (r *CodingResult) MarkCompleted() {
	now := time.Now().UTC()
	r.CompletedAt = &now
}
