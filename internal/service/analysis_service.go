package service

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/telemetry"
)

// AnalysisService starts background statistics generation for one
// production line.
type AnalysisService struct {
	registry *status.Registry
	enqueuer TaskEnqueuer
	notifier Notifier
	log      *zap.Logger
}

func NewAnalysisService(registry *status.Registry, enqueuer TaskEnqueuer, notifier Notifier, log *zap.Logger) *AnalysisService {
	return &AnalysisService{registry: registry, enqueuer: enqueuer, notifier: notifier, log: log}
}

// Start admits and enqueues one analysis run. Returns
// status.ErrAlreadyRunning when an analysis is already in flight.
func (s *AnalysisService) Start(ctx context.Context, line string) error {
	if err := s.registry.TryStart(model.JobClassAnalysis, "Generating analysis for line "+line); err != nil {
		telemetry.JobConflicts.WithLabelValues(string(model.JobClassAnalysis)).Inc()
		return err
	}

	task, err := newAnalysisTask(model.AnalysisTaskPayload{Line: line})
	if err != nil {
		s.registry.Fail(model.JobClassAnalysis, "failed to encode analysis task", nil)
		return err
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue(QueueAnalysis), asynq.MaxRetry(0)); err != nil {
		s.registry.Fail(model.JobClassAnalysis, "failed to enqueue analysis task", nil)
		return err
	}

	telemetry.JobsStarted.WithLabelValues(string(model.JobClassAnalysis)).Inc()
	s.notifier.Notify(ctx, fmt.Sprintf("Analysis generation started for line %s.", line), model.NotificationInProgress)
	s.log.Info("analysis run enqueued", zap.String("line", line))
	return nil
}

// Status returns the current analysis job status.
func (s *AnalysisService) Status() model.JobStatus {
	return s.registry.Get(model.JobClassAnalysis)
}
