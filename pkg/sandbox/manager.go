package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ctoengine/pkg/config"
	"ctoengine/pkg/logx"
	"ctoengine/pkg/tasks"
	"ctoengine/pkg/utils"
)

const containerPrefix = "cto-task-"

// EnvKind distinguishes lightweight validation sandboxes from full coding
// containers. The kinds carry different resource limits.
type EnvKind string

const (
	EnvSandbox EnvKind = "sandbox"
	EnvCoding  EnvKind = "coding"
)

// Environment is one tracked container tied to a task.
type Environment struct {
	TaskID        string
	ContainerName string
	Kind          EnvKind
	CreatedAt     time.Time
	LastUsed      time.Time
}

// EnvOpts configures environment creation.
type EnvOpts struct {
	// HostWorkDir, when set, is mounted at /workspace.
	HostWorkDir string

	Env             []string
	NetworkDisabled bool
}

// Manager owns the container lifecycle for coding tasks. It enforces at most
// one live environment per task and guarantees cleanup is idempotent.
type Manager struct {
	cfg     config.SandboxConfig
	runtime Runtime
	logger  *logx.Logger

	mu   sync.Mutex
	envs map[string]*Environment // key: task ID
}

// NewManager creates an environment manager on top of a container runtime.
func NewManager(cfg config.SandboxConfig, rt Runtime) *Manager {
	return &Manager{
		cfg:     cfg,
		runtime: rt,
		logger:  logx.NewLogger("sandbox"),
		envs:    make(map[string]*Environment),
	}
}

// ContainerName returns the container name used for a task.
func ContainerName(taskID string) string {
	return containerPrefix + utils.ShortID(taskID)
}

// CreateEnvironment starts a container for the task. A second call for the
// same task while its environment is live returns ErrEnvironmentExists; the
// caller must clean up first.
func (m *Manager) CreateEnvironment(ctx context.Context, taskID string, kind EnvKind, opts EnvOpts) (*Environment, error) {
	if !m.runtime.Available() {
		return nil, fmt.Errorf("%w: cannot create environment for task %s", ErrRuntimeUnavailable, taskID)
	}

	m.mu.Lock()
	if _, exists := m.envs[taskID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrEnvironmentExists, taskID)
	}
	// Reserve the slot before the (slow) container start so concurrent
	// creates for the same task cannot race past the check.
	env := &Environment{
		TaskID:        taskID,
		ContainerName: ContainerName(taskID),
		Kind:          kind,
		CreatedAt:     time.Now(),
		LastUsed:      time.Now(),
	}
	m.envs[taskID] = env
	m.mu.Unlock()

	memory, cpus := m.cfg.CodingMemory, m.cfg.CodingCPUs
	if kind == EnvSandbox {
		memory, cpus = m.cfg.SandboxMemory, m.cfg.SandboxCPUs
	}

	runOpts := &RunOpts{
		Image:           m.cfg.Image,
		Memory:          memory,
		CPUs:            cpus,
		HostWorkDir:     opts.HostWorkDir,
		NetworkDisabled: opts.NetworkDisabled,
		Env:             opts.Env,
	}

	if err := m.runtime.StartContainer(ctx, env.ContainerName, runOpts); err != nil {
		m.mu.Lock()
		delete(m.envs, taskID)
		m.mu.Unlock()
		return nil, logx.Wrap(err, fmt.Sprintf("failed to create %s environment for task %s", kind, taskID))
	}

	m.logger.Info("Created %s environment %s for task %s", kind, env.ContainerName, taskID)
	return env, nil
}

// RunCommand executes a command in the task's environment with a hard
// timeout. A deadline overrun surfaces as ErrTimeout.
func (m *Manager) RunCommand(ctx context.Context, taskID string, cmd, env []string, timeout time.Duration) (ExecResult, error) {
	m.mu.Lock()
	environment, exists := m.envs[taskID]
	if exists {
		environment.LastUsed = time.Now()
	}
	m.mu.Unlock()

	if !exists {
		return ExecResult{}, fmt.Errorf("no environment for task %s, call CreateEnvironment first", taskID)
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return m.runtime.Exec(execCtx, environment.ContainerName, cmd, env)
}

// GetFileChanges inspects the container filesystem diff and returns the
// workspace files touched since creation.
func (m *Manager) GetFileChanges(ctx context.Context, taskID string) ([]tasks.FileChange, error) {
	m.mu.Lock()
	environment, exists := m.envs[taskID]
	m.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("no environment for task %s", taskID)
	}

	entries, err := m.runtime.Diff(ctx, environment.ContainerName)
	if err != nil {
		// A broken diff loses change attribution, nothing more. The quality
		// gate judges an empty change set; this is not an engine fault.
		m.logger.Warn("Diff failed for task %s, reporting no changes: %v", taskID, err)
		return nil, nil
	}

	var changes []tasks.FileChange
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Path, containerWorkspace+"/") {
			continue
		}
		status := "modified"
		switch entry.Kind {
		case 'A':
			status = "added"
		case 'D':
			status = "deleted"
		}
		changes = append(changes, tasks.FileChange{
			Path:   strings.TrimPrefix(entry.Path, containerWorkspace+"/"),
			Status: status,
		})
	}
	return changes, nil
}

// Cleanup removes the task's environment. Safe to call on every exit path:
// cleaning an already-cleaned task is a no-op. With force set, the container
// is removed even when the manager has no record of it, which covers crashed
// attempts from a previous process.
func (m *Manager) Cleanup(ctx context.Context, taskID string, force bool) error {
	m.mu.Lock()
	environment, exists := m.envs[taskID]
	if exists {
		delete(m.envs, taskID)
	}
	m.mu.Unlock()

	if !exists && !force {
		return nil
	}

	name := ContainerName(taskID)
	if environment != nil {
		name = environment.ContainerName
	}

	if err := m.runtime.Remove(ctx, name); err != nil {
		m.logger.Error("Failed to remove container %s: %v", name, err)
		return logx.Wrap(err, fmt.Sprintf("cleanup failed for task %s", taskID))
	}

	if environment != nil {
		m.logger.Info("Cleaned up environment %s (lived %v)", name, time.Since(environment.CreatedAt))
	}
	return nil
}

// CleanupStale removes environments older than maxAge and returns how many
// were reclaimed. Invoked periodically by the workflow sweeper.
func (m *Manager) CleanupStale(ctx context.Context, maxAge time.Duration) int {
	m.mu.Lock()
	var stale []string
	cutoff := time.Now().Add(-maxAge)
	for taskID, env := range m.envs {
		if env.LastUsed.Before(cutoff) {
			stale = append(stale, taskID)
		}
	}
	m.mu.Unlock()

	for _, taskID := range stale {
		m.logger.Warn("Reclaiming stale environment for task %s", taskID)
		if err := m.Cleanup(ctx, taskID, true); err != nil {
			m.logger.Error("Stale cleanup failed for task %s: %v", taskID, err)
		}
	}
	return len(stale)
}

// ActiveCount returns the number of live environments.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envs)
}

// Shutdown removes all environments, bounded by the context deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	taskIDs := make([]string, 0, len(m.envs))
	for taskID := range m.envs {
		taskIDs = append(taskIDs, taskID)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down %d active environments", len(taskIDs))

	var wg sync.WaitGroup
	for _, taskID := range taskIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Cleanup(ctx, id, true); err != nil {
				m.logger.Error("Failed to clean up task %s during shutdown: %v", id, err)
			}
		}(taskID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("environment shutdown timed out: %w", ctx.Err())
	}
}
