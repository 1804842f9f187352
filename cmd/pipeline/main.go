// Package main runs pipeline specifications.
// Executes: input extraction → features → merge → model → outputs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/logging"
	"retail-signal-lab/internal/modules"
	"retail-signal-lab/internal/observability"
	"retail-signal-lab/internal/orchestrator"
	"retail-signal-lab/internal/resources"
	"retail-signal-lab/internal/storage"
	"retail-signal-lab/internal/storage/sqlite"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Pipeline specification (YAML or JSON)")
	batch := flag.String("batch", "", "Comma-separated pipeline specifications to run in turn")
	modeName := flag.String("mode", "", "fit-init, fit, predict, predict-active or transform (default: mode in the specification)")
	appConfigPath := flag.String("app-config", "", "Application config (databases, sources, logging)")
	modelsDir := flag.String("models-dir", "", "Models root directory (default: paths.models)")
	overridePath := flag.String("override", "", "predict-active: db.sqlite holding InputFeat and FtrSpace")
	flag.Parse()

	if *configPath == "" && *batch == "" {
		fmt.Fprintln(os.Stderr, "Error: -config or -batch is required")
		flag.Usage()
		os.Exit(2)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling pipeline...\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *batch, *modeName, *appConfigPath, *modelsDir, *overridePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, batch, modeName, appConfigPath, modelsDir, overridePath string) error {
	app, err := loadAppConfig(appConfigPath)
	if err != nil {
		return err
	}
	if modelsDir == "" {
		modelsDir = app.Paths.Models
	}

	logger, err := logging.New(app.Logging.Level, app.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg, app.Metrics.Namespace)
	if app.Metrics.Addr != "" {
		srv := serveMetrics(app.Metrics.Addr, reg, logger)
		defer srv.Close()
	}

	set, cleanup, err := resources.Open(ctx, app, logger, m)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := orchestrator.New(orchestrator.Options{
		Registry:  modules.NewRegistry(set.Modules),
		ModelsDir: modelsDir,
		DataDir:   app.Paths.Data,
		RunLog:    set.RunLog,
		Logger:    logger,
		Metrics:   m,
	})

	var mode domain.Mode
	if modeName != "" {
		if mode, err = domain.ParseMode(modeName); err != nil {
			return err
		}
	}

	if batch != "" {
		return runBatch(ctx, orch, strings.Split(batch, ","), mode)
	}

	cfg, err := config.LoadPipeline(configPath)
	if err != nil {
		return err
	}
	if mode, err = cfg.ResolveMode(modeName); err != nil {
		return err
	}

	var override storage.WorkingStore
	if overridePath != "" {
		store, err := sqlite.OpenReadOnly(ctx, overridePath)
		if err != nil {
			return fmt.Errorf("open override store: %w", err)
		}
		defer store.Close()
		override = store
	}

	start := time.Now()
	records, err := orch.Exec(ctx, cfg, mode, override, modelsDir)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", cfg.Label(), err)
	}

	fmt.Printf("Pipeline %s (%s) completed in %s:\n", cfg.Label(), mode, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Predictions: %d\n", len(records))
	return nil
}

func runBatch(ctx context.Context, orch *orchestrator.Orchestrator, paths []string, mode domain.Mode) error {
	cfgs, err := config.LoadPipelines(paths)
	if err != nil {
		return err
	}

	result := orch.RunBatch(ctx, cfgs, mode)

	fmt.Printf("Batch completed:\n")
	fmt.Printf("  Succeeded: %d\n", len(result.Succeeded))
	for _, o := range result.Succeeded {
		fmt.Printf("    - %s (%s): %d predictions in %s\n", o.Pipeline, o.Mode, o.Records, o.Duration.Round(time.Millisecond))
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
		return errors.New("batch had failures")
	}
	return nil
}

func loadAppConfig(path string) (*config.App, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
