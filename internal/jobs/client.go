package jobs

import (
	"context"
	"fmt"
	"time"

	"outcall-server/internal/observability"

	"github.com/hibiken/asynq"
)

// Scheduler defers a pipeline run. The asynq-backed Client is the production
// implementation; an in-process timer implementation serves tests and
// deployments without Redis.
type Scheduler interface {
	ScheduleRunPipeline(ctx context.Context, payload RunPipelinePayload, delay time.Duration) error
}

// Client handles enqueueing background jobs
type Client struct {
	client *asynq.Client
	logger *observability.Logger
}

// NewClient creates a new job client
func NewClient(redisAddr string, logger *observability.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	return &Client{
		client: client,
		logger: logger,
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

// ScheduleRunPipeline enqueues a pipeline run task, delayed when delay > 0.
func (c *Client) ScheduleRunPipeline(ctx context.Context, payload RunPipelinePayload, delay time.Duration) error {
	task, err := NewRunPipelineTask(payload, delay)
	if err != nil {
		c.logger.Error(ctx, "failed to create run pipeline task", err)
		return fmt.Errorf("failed to create run pipeline task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error(ctx, "failed to enqueue run pipeline task", err)
		return fmt.Errorf("failed to enqueue run pipeline task: %w", err)
	}

	c.logger.Info(ctx, fmt.Sprintf("enqueued run pipeline task: %s (call: %s, attempt: %d, delay: %s)",
		info.ID, payload.CallID, payload.Attempt, delay))
	return nil
}

// TimerScheduler runs pipeline tasks in-process after the delay elapses. Used
// when Redis is not configured and by tests.
type TimerScheduler struct {
	run    func(ctx context.Context, payload RunPipelinePayload) error
	logger *observability.Logger
}

func NewTimerScheduler(run func(ctx context.Context, payload RunPipelinePayload) error,
	logger *observability.Logger) *TimerScheduler {
	return &TimerScheduler{run: run, logger: logger}
}

// ScheduleRunPipeline fires the run on its own goroutine. The run outlives
// the caller's context, matching queue-backed delivery semantics.
func (t *TimerScheduler) ScheduleRunPipeline(_ context.Context, payload RunPipelinePayload, delay time.Duration) error {
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx := context.Background()
		if err := t.run(ctx, payload); err != nil {
			t.logger.Error(ctx, fmt.Sprintf("scheduled pipeline run failed for call %s", payload.CallID), err)
		}
	}()
	return nil
}
