// ctoengine runs coding tasks through safety validation, sandboxed
// execution, and the quality gate, publishing approved work as draft pull
// requests.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

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
	"ctoengine/pkg/utils"
	"ctoengine/pkg/workflow"
)

// Version information, set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		taskPath    = flag.String("tasks", "", "Path to YAML task file")
		taskDesc    = flag.String("task", "", "Single task description (with -repo)")
		taskRepo    = flag.String("repo", "", "Repository (owner/repo) for -task")
		projectDir  = flag.String("projectdir", ".", "Project directory")
		statsRepo   = flag.String("stats", "", "Print aggregated metrics for a repository (owner/repo) and exit")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ctoengine %s (%s)\n", version, commit)
		os.Exit(0)
	}
	if *statsRepo != "" {
		os.Exit(runStats(*configPath, *statsRepo))
	}
	if *taskPath == "" && (*taskDesc == "" || *taskRepo == "") {
		fmt.Fprintln(os.Stderr, "Usage: ctoengine -tasks <file.yaml> | -task <description> -repo <owner/repo> | -stats <owner/repo>")
		os.Exit(2)
	}

	os.Exit(run(*configPath, *taskPath, *taskDesc, *taskRepo, *projectDir))
}

// run contains the main application logic and returns an exit code, so
// deferred cleanup executes before the process exits.
func run(configPath, taskPath, taskDesc, taskRepo, projectDir string) int {
	logger := logx.NewLogger("main")

	if err := config.LoadConfig(configPath); err != nil {
		logger.Error("Failed to load config: %v", err)
		return 1
	}
	cfg, err := config.GetConfig()
	if err != nil {
		logger.Error("Config unavailable: %v", err)
		return 1
	}

	if err := loadSecrets(projectDir, logger); err != nil {
		logger.Error("Failed to load secrets: %v", err)
		return 1
	}

	var taskList []*tasks.CodingTask
	if taskPath != "" {
		taskList, err = loadTasks(taskPath)
	} else {
		taskList, err = singleTask(taskDesc, taskRepo)
	}
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, manager, audit, recorder, err := buildEngine(cfg)
	if err != nil {
		logger.Error("Failed to assemble engine: %v", err)
		return 1
	}
	if audit != nil {
		defer func() { _ = audit.Close() }()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Error("Environment shutdown: %v", err)
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		group.Go(func() error {
			logger.Info("Metrics listening on %s", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(closeCtx)
		})
	}

	sweeper := workflow.NewSweeper(manager, recorder,
		5*time.Minute, time.Duration(cfg.Sandbox.StaleAfterSeconds)*time.Second)
	group.Go(func() error {
		sweeper.Run(groupCtx)
		return nil
	})

	// Run all tasks; the engine bounds actual concurrency internally.
	failures := 0
	results := make([]*tasks.CodingResult, len(taskList))
	taskGroup, taskCtx := errgroup.WithContext(groupCtx)
	for i, task := range taskList {
		taskGroup.Go(func() error {
			result, err := engine.ExecuteTask(taskCtx, task)
			if err != nil {
				logger.Error("Task %s: %v", task.TaskID, err)
			}
			results[i] = result
			return nil
		})
	}
	_ = taskGroup.Wait()
	stop()
	if err := group.Wait(); err != nil {
		logger.Error("Background worker: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	for _, result := range results {
		if result == nil {
			failures++
			continue
		}
		if result.Outcome != tasks.StatusApproved {
			failures++
		}
		if err := encoder.Encode(result); err != nil {
			logger.Error("Failed to render result: %v", err)
		}
	}

	if failures > 0 {
		logger.Warn("%d of %d tasks did not end approved", failures, len(taskList))
		return 1
	}
	return 0
}

// runStats queries the configured Prometheus server for one repository's
// aggregated activity and prints it as JSON.
func runStats(configPath, repository string) int {
	logger := logx.NewLogger("main")

	if err := config.LoadConfig(configPath); err != nil {
		logger.Error("Failed to load config: %v", err)
		return 1
	}
	cfg, err := config.GetConfig()
	if err != nil {
		logger.Error("Config unavailable: %v", err)
		return 1
	}
	if cfg.Metrics.PrometheusURL == "" {
		logger.Error("metrics.prometheus_url is not configured")
		return 1
	}

	service, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		logger.Error("Failed to reach Prometheus: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stats, err := service.GetRepositoryMetrics(ctx, repository)
	if err != nil {
		logger.Error("Metrics query failed: %v", err)
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(stats); err != nil {
		logger.Error("Failed to render metrics: %v", err)
		return 1
	}
	return 0
}

// buildEngine assembles the production dependency graph from configuration.
func buildEngine(cfg config.Config) (*workflow.Engine, *sandbox.Manager, *persistence.Store, *metrics.Recorder, error) {
	client, err := oracle.NewClient(cfg.Oracle)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tokenCounter, err := utils.NewTokenCounter()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	runtime := sandbox.NewCLIRuntime(cfg.Sandbox.Runtime)
	manager := sandbox.NewManager(cfg.Sandbox, runtime)

	audit, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
	}

	reviewer := oracle.NewReviewer(client, tokenCounter, cfg.Oracle.MaxTokens, cfg.Oracle.PromptTokenLimit)
	engine := workflow.NewEngine(cfg, workflow.Deps{
		Environments: manager,
		Workspaces:   executor.NewWorkspaceManager(cfg.Executor),
		Assessor:     oracle.NewAssessor(client, cfg.Oracle.MaxTokens),
		Gate:         gate.New(reviewer),
		GitHub: func(repository string) (github.GitHubClient, error) {
			return github.NewClientForRepo(repository)
		},
		Audit:    audit,
		Recorder: recorder,
	})
	return engine, manager, audit, recorder, nil
}

// loadSecrets decrypts the secrets file when present, prompting for the
// password. Plain environment variables still work without one.
func loadSecrets(projectDir string, logger *logx.Logger) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	password, err := config.PromptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	logger.Info("Loaded %d secrets", len(secrets))
	return nil
}
