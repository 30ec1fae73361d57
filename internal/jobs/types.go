package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Job type constants
const (
	TypeRunPipeline = "call:run_pipeline"
)

// Queue names
const (
	QueueCalls = "calls"
)

// RunPipelinePayload identifies one pipeline run for a call. Attempt is the
// retry counter at enqueue time; the pipeline owns its own retry policy, so
// the task itself carries MaxRetry(0).
type RunPipelinePayload struct {
	CallID  uuid.UUID `json:"call_id"`
	Attempt int       `json:"attempt"`
}

// NewRunPipelineTask creates a pipeline run task, optionally delayed.
func NewRunPipelineTask(payload RunPipelinePayload, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueCalls), asynq.MaxRetry(0)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return asynq.NewTask(TypeRunPipeline, data, opts...), nil
}
