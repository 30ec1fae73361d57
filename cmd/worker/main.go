package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"outcall-server/internal/bootstrap"
	"outcall-server/internal/config"
	"outcall-server/internal/jobs"
	"outcall-server/internal/observability"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Jobs.RedisAddr == "" {
		log.Fatal("REDIS_HOST must be set for the worker")
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	logger.Info(ctx, "Starting call pipeline worker...")

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Jobs.RedisAddr},
		asynq.Config{
			// Each worker slot is a full live call, so concurrency caps the
			// number of simultaneous conversations this process carries.
			Concurrency: 10,
			Queues: map[string]int{
				jobs.QueueCalls: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error(ctx, fmt.Sprintf("task %s failed: %v", task.Type(), err), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeRunPipeline, func(ctx context.Context, task *asynq.Task) error {
		var payload jobs.RunPipelinePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal pipeline payload: %w", err)
		}
		return deps.Processor.RunPipeline(ctx, payload.CallID)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, fmt.Sprintf("Worker started on Redis: %s", cfg.Jobs.RedisAddr))
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Failed to run worker server: %v", err)
		}
	}()

	<-sigChan
	logger.Info(ctx, "Shutting down worker...")
	srv.Shutdown()
	deps.Cleanup(ctx)
	logger.Info(ctx, "Worker stopped")
}
