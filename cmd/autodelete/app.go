package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/autodelete/internal/config"
	"github.com/aatumaykin/autodelete/internal/deletion"
	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/history"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/metrics"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/sweep"
)

// loadConfig loads .env, the config file and flag overrides, then validates.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// app is the wired sweep pipeline.
type app struct {
	policy       *retention.Policy
	orchestrator *sweep.Orchestrator
	metrics      *metrics.Metrics
}

// newApp wires client into a sweep orchestrator configured from cfg. reg may be
// nil when metrics are disabled.
func newApp(cfg *config.Config, client discord.Client, log *logger.Logger, reg prometheus.Registerer) (*app, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid retention policy: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(cfg.Metrics.Namespace, reg)
	}

	limiter := deletion.NewLimiter(cfg.Sweep.CallInterval())

	fetcher := history.NewFetcher(client, history.Options{
		PageSize: cfg.Sweep.PageSize,
		MaxPages: cfg.Sweep.MaxPages,
	}, log)

	var recorder deletion.Recorder
	if m != nil {
		recorder = m
	}
	executor := deletion.NewExecutor(client, deletion.Options{
		MaxAttempts: cfg.Sweep.MaxRetries,
		Limiter:     limiter,
	}, log, recorder)

	var sweepRecorder sweep.Recorder
	if m != nil {
		sweepRecorder = m
	}
	orchestrator := sweep.NewOrchestrator(fetcher, executor, sweep.Options{
		Concurrency: cfg.Sweep.Concurrency,
		MaxRetries:  cfg.Sweep.MaxRetries,
		SeekCutoff:  cfg.Sweep.SeekCutoffEnabled(),
		Limiter:     limiter,
	}, log, sweepRecorder)

	return &app{policy: policy, orchestrator: orchestrator, metrics: m}, nil
}
