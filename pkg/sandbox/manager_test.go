package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ctoengine/pkg/config"
)

// fakeRuntime records container operations without touching a real daemon.
type fakeRuntime struct {
	mu          sync.Mutex
	available   bool
	started     []string
	removed     []string
	diffOutput  []DiffEntry
	diffErr     error
	execBlocks  bool
	execResult  ExecResult
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{available: true}
}

func (f *fakeRuntime) Available() bool { return f.available }

func (f *fakeRuntime) StartContainer(_ context.Context, name string, _ *RunOpts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, _ string, cmd []string, _ []string) (ExecResult, error) {
	if f.execBlocks {
		<-ctx.Done()
		return ExecResult{ExitCode: 1}, fmt.Errorf("%w: %v", ErrTimeout, cmd)
	}
	return f.execResult, nil
}

func (f *fakeRuntime) Diff(_ context.Context, _ string) ([]DiffEntry, error) {
	return f.diffOutput, f.diffErr
}

func (f *fakeRuntime) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeRuntime) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeRuntime) removeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		Runtime:           "docker",
		Image:             "ubuntu:24.04",
		SandboxMemory:     "512m",
		SandboxCPUs:       "0.5",
		CodingMemory:      "2g",
		CodingCPUs:        "1",
		StaleAfterSeconds: 3600,
	}
}

func TestCreateEnvironment(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	env, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{})
	if err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}
	if env.ContainerName != "cto-task-task-001" {
		t.Errorf("Unexpected container name: %q", env.ContainerName)
	}
	if rt.startCount() != 1 {
		t.Errorf("Expected 1 container start, got %d", rt.startCount())
	}
	if m.ActiveCount() != 1 {
		t.Errorf("Expected 1 active environment, got %d", m.ActiveCount())
	}
}

func TestCreateEnvironment_DuplicateRejected(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	_, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{})
	if !errors.Is(err, ErrEnvironmentExists) {
		t.Errorf("Expected ErrEnvironmentExists, got %v", err)
	}
	if rt.startCount() != 1 {
		t.Errorf("Expected only 1 container start, got %d", rt.startCount())
	}
}

func TestCreateEnvironment_RuntimeUnavailable(t *testing.T) {
	rt := newFakeRuntime()
	rt.available = false
	m := NewManager(testSandboxConfig(), rt)

	_, err := m.CreateEnvironment(context.Background(), "task-001", EnvSandbox, EnvOpts{})
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Errorf("Expected ErrRuntimeUnavailable, got %v", err)
	}
	if rt.startCount() != 0 {
		t.Errorf("Expected no container starts, got %d", rt.startCount())
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	rt := newFakeRuntime()
	rt.execBlocks = true
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}

	_, err := m.RunCommand(context.Background(), "task-001", []string{"sleep", "60"}, nil, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestRunCommand_NoEnvironment(t *testing.T) {
	m := NewManager(testSandboxConfig(), newFakeRuntime())
	if _, err := m.RunCommand(context.Background(), "missing", []string{"true"}, nil, time.Second); err == nil {
		t.Error("Expected error for missing environment")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}

	if err := m.Cleanup(context.Background(), "task-001", false); err != nil {
		t.Fatalf("First cleanup failed: %v", err)
	}
	if err := m.Cleanup(context.Background(), "task-001", false); err != nil {
		t.Fatalf("Second cleanup failed: %v", err)
	}

	if rt.removeCount() != 1 {
		t.Errorf("Expected exactly 1 container removal, got %d", rt.removeCount())
	}
	if m.ActiveCount() != 0 {
		t.Errorf("Expected no active environments, got %d", m.ActiveCount())
	}
}

func TestCleanup_ForceRemovesUntracked(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	if err := m.Cleanup(context.Background(), "never-created", true); err != nil {
		t.Fatalf("Forced cleanup failed: %v", err)
	}
	if rt.removeCount() != 1 {
		t.Errorf("Expected forced removal of untracked container, got %d removals", rt.removeCount())
	}
}

func TestGetFileChanges(t *testing.T) {
	rt := newFakeRuntime()
	rt.diffOutput = []DiffEntry{
		{Kind: 'C', Path: "/workspace/pkg/server/handler.go"},
		{Kind: 'A', Path: "/workspace/pkg/server/handler_test.go"},
		{Kind: 'D', Path: "/workspace/old.go"},
		{Kind: 'C', Path: "/tmp/scratch"}, // outside workspace, dropped
	}
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}

	changes, err := m.GetFileChanges(context.Background(), "task-001")
	if err != nil {
		t.Fatalf("GetFileChanges failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 workspace changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].Path != "pkg/server/handler.go" || changes[0].Status != "modified" {
		t.Errorf("Unexpected first change: %+v", changes[0])
	}
	if changes[1].Status != "added" {
		t.Errorf("Expected added status, got %q", changes[1].Status)
	}
	if changes[2].Status != "deleted" {
		t.Errorf("Expected deleted status, got %q", changes[2].Status)
	}
}

func TestGetFileChanges_DiffFailureReportsNoChanges(t *testing.T) {
	rt := newFakeRuntime()
	rt.diffErr = errors.New("daemon hiccup")
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "task-001", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}

	changes, err := m.GetFileChanges(context.Background(), "task-001")
	if err != nil {
		t.Fatalf("Expected a failed diff to be tolerated, got %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("Expected no changes, got %+v", changes)
	}
}

func TestGetFileChanges_NoEnvironment(t *testing.T) {
	m := NewManager(testSandboxConfig(), newFakeRuntime())
	if _, err := m.GetFileChanges(context.Background(), "missing"); err == nil {
		t.Error("Expected error for missing environment")
	}
}

func TestCleanupStale(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	if _, err := m.CreateEnvironment(context.Background(), "old-task", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}
	if _, err := m.CreateEnvironment(context.Background(), "fresh-task", EnvCoding, EnvOpts{}); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}

	// Age out one environment.
	m.mu.Lock()
	m.envs["old-task"].LastUsed = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	reclaimed := m.CleanupStale(context.Background(), time.Hour)
	if reclaimed != 1 {
		t.Errorf("Expected 1 stale environment reclaimed, got %d", reclaimed)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("Expected 1 environment remaining, got %d", m.ActiveCount())
	}
}

func TestShutdown(t *testing.T) {
	rt := newFakeRuntime()
	m := NewManager(testSandboxConfig(), rt)

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := m.CreateEnvironment(context.Background(), id, EnvCoding, EnvOpts{}); err != nil {
			t.Fatalf("CreateEnvironment failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if m.ActiveCount() != 0 {
		t.Errorf("Expected no environments after shutdown, got %d", m.ActiveCount())
	}
	if rt.removeCount() != 3 {
		t.Errorf("Expected 3 removals, got %d", rt.removeCount())
	}
}
