// main package for the speech-engine service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-engine/internal/backend"
	"github.com/book-expert/speech-engine/internal/config"
	"github.com/book-expert/speech-engine/internal/engine"
	"github.com/book-expert/speech-engine/internal/httpapi"
	"github.com/book-expert/speech-engine/internal/objectstore"
	"github.com/book-expert/speech-engine/internal/segment"
	"github.com/book-expert/speech-engine/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "speech-engine.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// Bootstrap logger lives in the temp dir until config says otherwise.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve wires the NATS worker and the HTTP API and blocks until shutdown.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	backendClient := backend.New(
		cfg.Backend.ServiceURL(),
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
	)

	speechEngine, err := engine.New(backendClient, segment.CountWords, log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	speechWorker, err := worker.New(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		store,
		speechEngine,
		cfg.Engine,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	apiServer := httpapi.New(speechEngine, log)

	errChan := make(chan error, 2)

	go func() {
		errChan <- speechWorker.Run(ctx)
	}()

	go func() {
		errChan <- apiServer.Run(cfg.HTTP.ListenAddress)
	}()

	log.System(
		"Speech engine started: jobs on %s, HTTP API on %s",
		cfg.NATS.TextProcessedSubject,
		cfg.HTTP.ListenAddress,
	)

	select {
	case err = <-errChan:
		if err != nil {
			return fmt.Errorf("service failed: %w", err)
		}

		return nil
	case <-ctx.Done():
		log.System("Shutdown signal received, draining")

		return <-errChan
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
