// Package sandbox manages isolated container environments for coding tasks.
// Containers are driven through the docker or podman CLI; the daemon API is
// deliberately not used so the engine works against either runtime unchanged.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"ctoengine/pkg/logx"
)

const (
	dockerCommand = "docker"
	podmanCommand = "podman"

	containerWorkspace = "/workspace"
)

// Sentinel errors surfaced to the workflow layer.
var (
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrTimeout            = errors.New("execution timed out")
	ErrEnvironmentExists  = errors.New("environment already exists for task")
)

// ExecResult captures the outcome of a command run inside a container.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// DiffEntry is one filesystem change reported by the container runtime.
// Kind is 'A' (added), 'C' (changed) or 'D' (deleted).
type DiffEntry struct {
	Kind byte
	Path string
}

// RunOpts configures container creation.
//
//nolint:govet // Logical grouping preferred over memory optimization
type RunOpts struct {
	Image  string
	Memory string
	CPUs   string

	// HostWorkDir, when set, is bind-mounted at /workspace.
	HostWorkDir     string
	ReadOnlyWorkDir bool

	NetworkDisabled bool
	Env             []string
}

// Runtime is the container backend the environment manager drives. The
// production implementation shells out to docker/podman; tests substitute a
// fake.
type Runtime interface {
	// Available reports whether the backend can run containers right now.
	Available() bool

	// StartContainer creates and starts a detached container under the
	// given name, replacing any leftover container with that name.
	StartContainer(ctx context.Context, name string, opts *RunOpts) error

	// Exec runs a command inside a running container.
	Exec(ctx context.Context, name string, cmd []string, env []string) (ExecResult, error)

	// Diff reports filesystem changes since container start.
	Diff(ctx context.Context, name string) ([]DiffEntry, error)

	// Remove force-removes a container. Removing an absent container is
	// not an error.
	Remove(ctx context.Context, name string) error
}

// CLIRuntime drives containers through the docker or podman CLI.
type CLIRuntime struct {
	logger *logx.Logger
	binary string
}

// NewCLIRuntime creates a CLI-backed runtime. An empty or "auto" binary
// selects docker, falling back to podman when docker is absent.
func NewCLIRuntime(binary string) *CLIRuntime {
	if binary == "" || binary == "auto" {
		binary = dockerCommand
		if _, err := osexec.LookPath(podmanCommand); err == nil {
			if _, err := osexec.LookPath(dockerCommand); err != nil {
				binary = podmanCommand
			}
		}
	}

	return &CLIRuntime{
		logger: logx.NewLogger("sandbox"),
		binary: binary,
	}
}

// Binary returns the container CLI in use.
func (r *CLIRuntime) Binary() string {
	return r.binary
}

// Available checks that the CLI exists and the daemon answers.
func (r *CLIRuntime) Available() bool {
	if _, err := osexec.LookPath(r.binary); err != nil {
		r.logger.Debug("Container CLI not found: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := osexec.CommandContext(ctx, r.binary, "ps", "-q")
	if err := cmd.Run(); err != nil {
		r.logger.Debug("Container daemon not available: %v", err)
		return false
	}
	return true
}

// StartContainer creates and starts a detached container.
func (r *CLIRuntime) StartContainer(ctx context.Context, name string, opts *RunOpts) error {
	// Remove any leftover container with the same name from a previous run.
	rmCmd := osexec.CommandContext(ctx, r.binary, "rm", "-f", name)
	if err := rmCmd.Run(); err != nil {
		r.logger.Debug("No leftover container %s to remove: %v", name, err)
	}

	args := []string{"run", "-d", "--name", name}

	args = append(args, "--security-opt", "no-new-privileges")
	args = append(args, "--pids-limit", "256")
	args = append(args, "--tmpfs", "/tmp")

	if opts.NetworkDisabled {
		args = append(args, "--network", "none")
	}
	if opts.CPUs != "" {
		args = append(args, "--cpus", opts.CPUs)
	}
	if opts.Memory != "" {
		args = append(args, "--memory", opts.Memory)
	}

	if opts.HostWorkDir != "" {
		hostPath, err := filepath.Abs(opts.HostWorkDir)
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		if err := os.MkdirAll(hostPath, 0755); err != nil {
			return fmt.Errorf("failed to create workspace directory %s: %w", hostPath, err)
		}

		mountMode := "rw"
		if opts.ReadOnlyWorkDir {
			mountMode = "ro"
		}
		args = append(args, "--volume", fmt.Sprintf("%s:%s:%s", hostPath, containerWorkspace, mountMode), "--workdir", containerWorkspace)
	}

	for _, env := range opts.Env {
		args = append(args, "--env", env)
	}

	// Keep the container alive until explicitly removed.
	args = append(args, opts.Image, "sleep", "infinity")

	cmd := osexec.CommandContext(ctx, r.binary, args...)
	cmd.Env = os.Environ()

	r.logger.Info("Starting container: %s %s", r.binary, strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Error("Container start failed: %v\nOutput: %s", err, string(output))
		return fmt.Errorf("failed to start container %s: %w\nOutput: %s", name, err, string(output))
	}

	r.logger.Info("Started container %s with ID: %s", name, strings.TrimSpace(string(output)))
	return nil
}

// Exec runs a command inside a running container. Timeout handling belongs to
// the caller's context; a deadline exceeded surfaces as ErrTimeout upstream.
func (r *CLIRuntime) Exec(ctx context.Context, name string, cmd []string, env []string) (ExecResult, error) {
	if len(cmd) == 0 {
		return ExecResult{}, fmt.Errorf("command cannot be empty")
	}

	execArgs := []string{"exec", "-i"}
	for _, envVar := range env {
		execArgs = append(execArgs, "-e", envVar)
	}
	execArgs = append(execArgs, name)
	execArgs = append(execArgs, cmd...)

	start := time.Now()

	dockerCmd := osexec.CommandContext(ctx, r.binary, execArgs...)
	var stdout, stderr strings.Builder
	dockerCmd.Stdout = &stdout
	dockerCmd.Stderr = &stderr

	r.logger.Debug("Executing in %s: %s", name, strings.Join(cmd, " "))

	err := dockerCmd.Run()

	result := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
		}
		if ctx.Err() == nil {
			r.logger.Warn("Exec failed in %s: %v\nstderr: %s", name, err, result.Stderr)
		}
		return result, execError(ctx, cmd, err)
	}

	return result, nil
}

// execError classifies a failed exec. Only a blown deadline counts as a
// timeout; cancellation keeps its own identity so an interrupted run is not
// misreported as a slow one.
func execError(ctx context.Context, cmd []string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, strings.Join(cmd, " "))
	}
	if ctx.Err() != nil {
		return fmt.Errorf("exec cancelled: %w", ctx.Err())
	}
	return fmt.Errorf("container exec failed: %w", err)
}

// Diff reports filesystem changes since container start. Output lines look
// like "C /etc", "A /workspace/main.go", "D /tmp/x".
func (r *CLIRuntime) Diff(ctx context.Context, name string) ([]DiffEntry, error) {
	cmd := osexec.CommandContext(ctx, r.binary, "diff", name)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("container diff failed: %w\nOutput: %s", err, string(output))
	}
	return parseDiffOutput(string(output)), nil
}

// parseDiffOutput parses "docker diff" lines into entries, dropping git
// bookkeeping paths.
func parseDiffOutput(output string) []DiffEntry {
	var entries []DiffEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		kind := line[0]
		if kind != 'A' && kind != 'C' && kind != 'D' {
			continue
		}
		path := strings.TrimSpace(line[1:])
		if strings.Contains(path, "/.git/") || strings.HasSuffix(path, "/.git") {
			continue
		}
		entries = append(entries, DiffEntry{Kind: kind, Path: path})
	}
	return entries
}

// Remove force-removes a container. Absent containers are fine.
func (r *CLIRuntime) Remove(ctx context.Context, name string) error {
	cmd := osexec.CommandContext(ctx, r.binary, "rm", "-f", name)
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.ToLower(string(output))
		if strings.Contains(out, "no such container") {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w\nOutput: %s", name, err, string(output))
	}
	return nil
}
