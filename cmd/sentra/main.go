package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sentraops/sentra/internal/actions"
	"github.com/sentraops/sentra/internal/engine"
	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/internal/logging"
	"github.com/sentraops/sentra/internal/scheduler"
	"github.com/sentraops/sentra/internal/store"
	"github.com/sentraops/sentra/internal/trigger"
	"github.com/sentraops/sentra/internal/validation"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version":
			printVersion()
			return
		case "graph":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: sentra graph <playbook.json>")
				os.Exit(2)
			}
			if err := runGraph(os.Args[2]); err != nil {
				fmt.Fprintln(os.Stderr, "sentra:", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentra:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("create CEL engine: %w", err)
	}
	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()

	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry, defaultCollaborators(), exprEngine, jqEngine); err != nil {
		return fmt.Errorf("register actions: %w", err)
	}

	validator, err := validation.NewPlaybookValidator(registry, celEngine)
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}
	sweepActivePlaybooks(ctx, st, validator, logger)

	orch := engine.NewOrchestrator(engine.Config{
		MaxSteps:         cfg.MaxSteps,
		StepTimeout:      cfg.stepTimeout(),
		ExecutionTimeout: cfg.executionTimeout(),
		Concurrency:      cfg.PoolSize,
		Logger:           logger,
	}, st, registry, trigger.NewMatcher(celEngine))

	sched := scheduler.NewScheduler(st, orch, cfg.schedulerInterval(), logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("sentra engine started",
		slog.String("db_path", cfg.DBPath),
		slog.Int("pool_size", cfg.PoolSize),
		slog.String("version", version),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("shutting down", slog.String("signal", sig.String()))

	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop failed", slog.String("error", err.Error()))
	}
	orch.Shutdown()
	orch.Wait()

	logger.Info("sentra engine stopped")
	return nil
}

// sweepActivePlaybooks re-validates every active playbook at startup so
// definitions that predate a rule change are flagged before they fire.
func sweepActivePlaybooks(ctx context.Context, st store.Store, validator *validation.PlaybookValidator, logger *slog.Logger) {
	playbooks, err := st.ListActivePlaybooks(ctx)
	if err != nil {
		logger.Error("startup playbook sweep failed", slog.String("error", err.Error()))
		return
	}

	for _, pb := range playbooks {
		result := validator.Validate(&pb.Definition)
		for _, issue := range result.Errors {
			logger.Error("active playbook fails validation",
				slog.String("playbook_id", pb.ID),
				slog.Int("version", pb.Version),
				slog.String("path", issue.Path),
				slog.String("message", issue.Message),
			)
		}
		for _, issue := range result.Warnings {
			logger.Warn("active playbook validation warning",
				slog.String("playbook_id", pb.ID),
				slog.Int("version", pb.Version),
				slog.String("path", issue.Path),
				slog.String("message", issue.Message),
			)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
