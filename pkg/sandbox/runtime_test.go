package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseDiffOutput(t *testing.T) {
	output := `C /workspace
C /workspace/pkg
C /workspace/pkg/server/handler.go
A /workspace/pkg/server/handler_test.go
D /workspace/old.go
C /workspace/.git/index
A /workspace/.git
? /garbage line
`
	entries := parseDiffOutput(output)

	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d: %+v", len(entries), entries)
	}
	if entries[2].Kind != 'A' || entries[2].Path != "/workspace/pkg/server/handler_test.go" {
		t.Errorf("Unexpected entry: %+v", entries[2])
	}
	for _, e := range entries {
		if e.Path == "/workspace/.git/index" || e.Path == "/workspace/.git" {
			t.Errorf("Git bookkeeping path should be dropped: %+v", e)
		}
	}
}

func TestParseDiffOutput_Empty(t *testing.T) {
	if entries := parseDiffOutput(""); len(entries) != 0 {
		t.Errorf("Expected no entries for empty output, got %d", len(entries))
	}
}

func TestExecError_Classification(t *testing.T) {
	deadlineCtx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if err := execError(deadlineCtx, []string{"sleep", "60"}, errors.New("signal: killed")); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout for an exceeded deadline, got %v", err)
	}

	cancelledCtx, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := execError(cancelledCtx, []string{"true"}, errors.New("signal: killed")); errors.Is(err, ErrTimeout) {
		t.Errorf("Cancellation must not classify as timeout, got %v", err)
	}

	if err := execError(context.Background(), []string{"false"}, errors.New("exit status 1")); errors.Is(err, ErrTimeout) {
		t.Errorf("Plain failure must not classify as timeout, got %v", err)
	}
}

func TestNewCLIRuntime_ExplicitBinary(t *testing.T) {
	rt := NewCLIRuntime("podman")
	if rt.Binary() != "podman" {
		t.Errorf("Expected explicit binary preserved, got %q", rt.Binary())
	}
}
