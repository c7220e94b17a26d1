// Package main runs an interactive practice session from the terminal,
// recording each word from the microphone.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/palabra/internal/bootstrap"
	"github.com/maauso/palabra/internal/capture"
	"github.com/maauso/palabra/internal/config"
	"github.com/maauso/palabra/internal/console"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Prompts go to stdout, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if cfg.LogLevel == "debug" {
		logger = cfg.NewLogger()
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close(context.Background())

	if _, err := deps.Storage.PurgeTemp(ctx); err != nil {
		logger.Warn("failed to purge temp dir", slog.String("error", err.Error()))
	}

	backend, err := capture.OpenMalgo()
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	rec, err := capture.NewRecorder(ctx, backend, capture.Config{
		DeviceIndex: cfg.CaptureDevice,
		SampleRate:  cfg.SampleRate,
		Duration:    cfg.RecordDuration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	fmt.Printf("Using input device: %s\n", rec.Device())

	runner := console.NewRunner(deps.Service, rec, os.Stdin, os.Stdout, logger)
	if _, err := runner.Run(ctx); err != nil {
		return err
	}
	return nil
}
