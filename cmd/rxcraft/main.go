// Package main implements the entry point for the RxCraft runtime: the
// engine that compiles visual dataflow graphs into live reactive streams,
// served to the editor through an HTTP gateway with a websocket event feed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/langhuihui/rxcraft/config"
	"github.com/langhuihui/rxcraft/engine"
	"github.com/langhuihui/rxcraft/flowstore"
	"github.com/langhuihui/rxcraft/gateway"
	"github.com/langhuihui/rxcraft/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rxcraft"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting RxCraft (reactive dataflow runtime)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	registry := metric.NewMetricsRegistry()

	eng := engine.New(logger, registry,
		engine.WithHistory(cfg.Engine.EventHistory))

	store := flowstore.NewStore()
	if cfg.Engine.PreloadSamples {
		store.Preload(flowstore.SampleFlows())
		slog.Info("Sample flows preloaded", "count", len(flowstore.SampleFlows()))
	}

	gw, err := gateway.NewGateway(cfg.Gateway, eng, store, logger, registry.CoreMetrics())
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	}

	return serve(eng, gw, metricsServer, cliCfg.ShutdownTimeout)
}

// serve starts the gateway and metrics server and blocks until a shutdown
// signal arrives, then tears everything down in reverse order.
func serve(eng *engine.Engine, gw *gateway.Gateway, metricsServer *metric.Server, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := gw.Start(signalCtx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	var group errgroup.Group
	if metricsServer != nil {
		group.Go(func() error {
			slog.Info("Metrics server starting", "address", metricsServer.Address())
			return metricsServer.Start()
		})
	}

	slog.Info("RxCraft started", "gateway", gw.Address())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	// Stop accepting requests first, then kill any live run, then the
	// metrics endpoint last so the shutdown itself stays observable.
	if err := gw.Stop(shutdownTimeout); err != nil {
		slog.Error("Gateway shutdown error", "error", err)
	}
	if run := eng.Run(); run != nil && run.Running() {
		run.Stop()
		slog.Info("Run stopped", "run_id", run.ID())
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("RxCraft shutdown complete")
	return nil
}

// loadConfig builds the effective configuration: file layer if given, then
// environment overrides, then explicit CLI logging flags on top.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	return cfg, nil
}
