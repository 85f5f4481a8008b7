package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"ctoengine/pkg/tasks"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListDecisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordDecision(ctx, "task-001", StageSafety, "safe", ""); err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}
	if err := store.RecordDecision(ctx, "task-001", StageGate, "REQUEST_CHANGES", "missing tests"); err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}
	if err := store.RecordDecision(ctx, "task-002", StageSafety, "rejected", "risky phrase"); err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}

	decisions, err := store.ListDecisions(ctx, "task-001")
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].Stage != StageSafety || decisions[1].Stage != StageGate {
		t.Errorf("Unexpected decision order: %+v", decisions)
	}
	if decisions[1].Detail != "missing tests" {
		t.Errorf("Unexpected detail: %q", decisions[1].Detail)
	}
}

func TestListDecisions_Empty(t *testing.T) {
	store := newTestStore(t)
	decisions, err := store.ListDecisions(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("Expected empty trail, got %d", len(decisions))
	}
}

func TestSaveAndGetResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := tasks.NewResult("task-001")
	result.Status = tasks.StatusApproved
	result.PRNumber = 42
	result.RetryCount = 1
	result.FilesChanged = []tasks.FileChange{{Path: "a.go", Status: "modified"}}

	if err := store.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	loaded, err := store.GetResult(ctx, "task-001")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected persisted result")
	}
	if loaded.Status != tasks.StatusApproved || loaded.PRNumber != 42 {
		t.Errorf("Unexpected loaded result: %+v", loaded)
	}
	if len(loaded.FilesChanged) != 1 {
		t.Errorf("Expected file changes preserved, got %+v", loaded.FilesChanged)
	}

	// Upsert overwrites.
	result.Status = tasks.StatusCompleted
	if err := store.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	loaded, err = store.GetResult(ctx, "task-001")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if loaded.Status != tasks.StatusCompleted {
		t.Errorf("Expected upsert to overwrite status, got %s", loaded.Status)
	}
}

func TestGetResult_Missing(t *testing.T) {
	store := newTestStore(t)
	result, err := store.GetResult(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil for missing result, got %+v", result)
	}
}
