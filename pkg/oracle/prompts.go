package oracle

import (
	"fmt"
	"strings"

	"ctoengine/pkg/tasks"
)

// assessmentSystemPrompt frames the model as a task triager.
const assessmentSystemPrompt = `You are a technical lead triaging coding tasks for automated execution.
Rate each task honestly; underestimating complexity causes failed runs and wasted retries.
Respond with JSON only, no prose.`

// reviewSystemPrompt frames the model as a code reviewer.
const reviewSystemPrompt = `You are a senior engineer reviewing automatically generated code changes before they become a pull request.
Hold the changes to the same bar as human-written code: correctness, scope discipline, tests, and no leaked secrets.
Respond with JSON only, no prose.`

// complexityGuidelines calibrates the assessment. Kept verbose on purpose;
// short rubrics produce inconsistent ratings.
const complexityGuidelines = `Complexity levels:
- trivial: single-line changes, config updates, typo fixes
- simple: single function, obvious implementation, no design decisions
- moderate: multiple files, some design decisions, existing patterns to follow
- complex: significant feature, architectural impact, multiple components
- very_complex: multi-component change, high risk, needs human oversight`

// buildAssessmentPrompt renders the complexity-assessment prompt for a task.
func buildAssessmentPrompt(task *tasks.CodingTask) string {
	var sb strings.Builder

	sb.WriteString("Analyze this coding task.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.Description)
	fmt.Fprintf(&sb, "Repository: %s\n", task.Repository)
	fmt.Fprintf(&sb, "Base branch: %s\n", task.BaseBranch)
	for key, value := range task.Context {
		fmt.Fprintf(&sb, "Context %s: %s\n", key, value)
	}

	sb.WriteString("\n")
	sb.WriteString(complexityGuidelines)
	sb.WriteString("\n\nProvide your assessment as JSON:\n")
	sb.WriteString(`{
  "complexity": "moderate",
  "estimated_files": 3,
  "requires_testing": true,
  "risk_level": "medium",
  "reasoning": "...",
  "implementation_steps": ["..."]
}`)

	return sb.String()
}

// buildReviewPrompt renders the quality-gate review prompt. diffContext is
// already truncated to the prompt token budget by the caller.
func buildReviewPrompt(task *tasks.CodingTask, changes []tasks.FileChange, diffContext string) string {
	var sb strings.Builder

	sb.WriteString("Review the following automated code changes.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.Description)
	fmt.Fprintf(&sb, "Repository: %s\n\n", task.Repository)

	sb.WriteString("Files changed:\n")
	for _, change := range changes {
		fmt.Fprintf(&sb, "- %s (%s, +%d/-%d)\n", change.Path, change.Status, change.Additions, change.Deletions)
	}

	if diffContext != "" {
		sb.WriteString("\nDiff:\n")
		sb.WriteString(diffContext)
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with a verdict as JSON:\n")
	sb.WriteString(`{
  "verdict": "APPROVE",
  "summary": "...",
  "comments": ["..."],
  "security_issues": []
}
Valid verdicts: APPROVE (ready to merge), REQUEST_CHANGES (issues must be fixed), COMMENT (observations only, not blocking).
List touched credentials, injection risks, or leaked secrets under security_issues.`)

	return sb.String()
}
