package service

import (
	"context"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/telemetry"
)

// TrainingService starts background model training runs.
type TrainingService struct {
	registry *status.Registry
	enqueuer TaskEnqueuer
	notifier Notifier
	lines    []string
	log      *zap.Logger
}

func NewTrainingService(registry *status.Registry, enqueuer TaskEnqueuer, notifier Notifier, lines []string, log *zap.Logger) *TrainingService {
	return &TrainingService{registry: registry, enqueuer: enqueuer, notifier: notifier, lines: lines, log: log}
}

// Start admits and enqueues one training run. Empty lines defaults to
// every known production line; empty models lets the trainer pick.
func (s *TrainingService) Start(ctx context.Context, lines, models []string) error {
	if len(lines) == 0 {
		lines = s.lines
	}

	if err := s.registry.TryStart(model.JobClassTraining, "Training models for lines: "+strings.Join(lines, ", ")); err != nil {
		telemetry.JobConflicts.WithLabelValues(string(model.JobClassTraining)).Inc()
		return err
	}

	task, err := newTrainingTask(model.TrainingTaskPayload{Lines: lines, Models: models})
	if err != nil {
		s.registry.Fail(model.JobClassTraining, "failed to encode training task", nil)
		return err
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue(QueueTraining), asynq.MaxRetry(0)); err != nil {
		s.registry.Fail(model.JobClassTraining, "failed to enqueue training task", nil)
		return err
	}

	telemetry.JobsStarted.WithLabelValues(string(model.JobClassTraining)).Inc()
	s.notifier.Notify(ctx, "Model training started for lines "+strings.Join(lines, ", ")+".", model.NotificationInProgress)
	s.log.Info("training run enqueued", zap.Strings("lines", lines), zap.Strings("models", models))
	return nil
}

// Status returns the current training job status.
func (s *TrainingService) Status() model.JobStatus {
	return s.registry.Get(model.JobClassTraining)
}
