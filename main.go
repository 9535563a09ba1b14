package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gosom/airlock/runner"
	"github.com/gosom/airlock/runner/migraterunner"
	"github.com/gosom/airlock/runner/workerrunner"
	"github.com/gosom/airlock/telemetry"
)

func main() {
	_ = godotenv.Load() // Load .env file if present

	ctx, cancel := context.WithCancel(context.Background())

	cfg := runner.ParseConfig()

	tlm := buildTelemetry()
	defer tlm.Close()

	_ = tlm.Send(ctx, telemetry.NewEvent("airlock_started", map[string]any{
		"run_mode": cfg.RunMode,
	}))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		log.Println("Received signal, shutting down...")

		cancel()
	}()

	runnerInstance, err := runnerFactory(cfg)
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		os.Exit(1)
	}

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		_ = runnerInstance.Close(ctx)

		cancel()

		os.Exit(1)
	}

	_ = runnerInstance.Close(ctx)

	cancel()

	os.Exit(0)
}

// buildTelemetry is opt-in: without a key every event is dropped locally.
func buildTelemetry() telemetry.Service {
	key := os.Getenv("AIRLOCK_TELEMETRY_KEY")
	if key == "" {
		return telemetry.NewNoop()
	}

	endpoint := os.Getenv("AIRLOCK_TELEMETRY_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://eu.i.posthog.com"
	}

	svc, err := telemetry.NewPostHog(key, endpoint)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)

		return telemetry.NewNoop()
	}

	return svc
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeWorker:
		return workerrunner.New(cfg)
	case runner.RunModeMigrate:
		return migraterunner.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
