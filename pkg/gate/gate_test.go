package gate

import (
	"context"
	"testing"

	"ctoengine/pkg/oracle"
	"ctoengine/pkg/tasks"
	"ctoengine/pkg/utils"
)

func newTestGate(client oracle.Client) *Gate {
	tc, _ := utils.NewTokenCounter()
	return New(oracle.NewReviewer(client, tc, 1024, 8000))
}

func gateTask() *tasks.CodingTask {
	task := &tasks.CodingTask{
		TaskID:      "task-001",
		Description: "Add pagination to the users endpoint",
		Repository:  "acme/widgets",
	}
	task.ApplyDefaults()
	return task
}

func TestEvaluate_NoChangesFailsWithoutReview(t *testing.T) {
	client := oracle.NewMockClient()
	g := newTestGate(client)

	review, err := g.Evaluate(context.Background(), gateTask(), nil, "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if review.Passed() {
		t.Error("Expected empty change set to fail the gate")
	}
	if review.Summary != NoChangesMessage {
		t.Errorf("Unexpected summary: %q", review.Summary)
	}
	if client.Calls() != 0 {
		t.Errorf("Oracle must not be consulted for empty change sets, got %d calls", client.Calls())
	}
}

func TestEvaluate_WithChanges(t *testing.T) {
	client := oracle.NewMockClient()
	client.QueueResponse(`{"verdict": "APPROVE", "summary": "ok", "comments": []}`)
	g := newTestGate(client)

	changes := []tasks.FileChange{{Path: "a.go", Status: "modified"}}
	review, err := g.Evaluate(context.Background(), gateTask(), changes, "diff")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !review.Passed() {
		t.Error("Expected approval to pass")
	}
	if client.Calls() != 1 {
		t.Errorf("Expected 1 oracle call, got %d", client.Calls())
	}
}

func TestDecide_Approved(t *testing.T) {
	task := gateTask()
	result := tasks.NewResult(task.TaskID)

	outcome := Decide(task, result, &oracle.Review{Verdict: oracle.VerdictApprove})
	if outcome.NextStatus != tasks.StatusApproved {
		t.Errorf("Expected APPROVED, got %s", outcome.NextStatus)
	}
	if outcome.Retry {
		t.Error("Approval must not retry")
	}
}

func TestDecide_RetryThenReject(t *testing.T) {
	task := gateTask() // MaxRetries = 2
	result := tasks.NewResult(task.TaskID)
	rejection := &oracle.Review{Verdict: oracle.VerdictRequestChanges, Summary: "missing tests"}

	// First rejection: retry 1.
	outcome := Decide(task, result, rejection)
	if !outcome.Retry || outcome.NextStatus != tasks.StatusExecuting {
		t.Fatalf("Expected first rejection to retry, got %+v", outcome)
	}
	result.RetryCount++

	// Second rejection: retry 2.
	outcome = Decide(task, result, rejection)
	if !outcome.Retry {
		t.Fatalf("Expected second rejection to retry, got %+v", outcome)
	}
	result.RetryCount++

	// Third rejection: budget exhausted.
	outcome = Decide(task, result, rejection)
	if outcome.Retry {
		t.Fatal("Expected no retry after budget exhausted")
	}
	if outcome.NextStatus != tasks.StatusRejected {
		t.Errorf("Expected REJECTED, got %s", outcome.NextStatus)
	}
	if outcome.Reason != "quality gate failed after 2 retries" {
		t.Errorf("Unexpected exhaustion reason: %q", outcome.Reason)
	}
}

func TestDecide_CommentVerdictPasses(t *testing.T) {
	task := gateTask()
	result := tasks.NewResult(task.TaskID)

	outcome := Decide(task, result, &oracle.Review{Verdict: oracle.VerdictComment, Summary: "nits"})
	if outcome.NextStatus != tasks.StatusApproved {
		t.Errorf("COMMENT should pass the gate, got %s", outcome.NextStatus)
	}
}
