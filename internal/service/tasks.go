package service

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/kpipulse/api/internal/model"
)

// Task types routed through the asynq mux.
const (
	TaskTypePipeline = "pipeline:run"
	TaskTypeAnalysis = "analysis:run"
	TaskTypeTraining = "training:run"
)

// Queue names, one per job class. Mutual exclusion is enforced by the
// status registry before enqueue, not by the queues.
const (
	QueuePipeline = "pipeline"
	QueueAnalysis = "analysis"
	QueueTraining = "training"
)

// TaskEnqueuer abstracts the asynq client so services can be tested
// without Redis.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier records and pushes job lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, message string, status model.NotificationStatus)
}

func newPipelineTask(payload model.PipelineTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}

func newAnalysisTask(payload model.AnalysisTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalysis, data), nil
}

func newTrainingTask(payload model.TrainingTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTraining, data), nil
}
