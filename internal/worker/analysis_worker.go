package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/telemetry"
)

// AnalysisWorker executes one queued statistics run for a production
// line. The analysis script writes its artifacts itself; the worker only
// tracks the outcome.
type AnalysisWorker struct {
	registry *status.Registry
	sup      ScriptRunner
	notifier Notifier
	log      *zap.Logger
}

func NewAnalysisWorker(registry *status.Registry, sup ScriptRunner, notifier Notifier, log *zap.Logger) *AnalysisWorker {
	return &AnalysisWorker{registry: registry, sup: sup, notifier: notifier, log: log}
}

// ProcessTask implements asynq.Handler; domain failures settle in the
// registry and return nil so asynq never retries an expensive run.
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalysisTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.log.Error("malformed analysis task payload", zap.Error(err))
		w.registry.Fail(model.JobClassAnalysis, "malformed task payload", nil)
		return nil
	}

	start := time.Now()
	out, err := w.sup.RunScript(ctx, ScriptAnalysis, []string{payload.Line}, nil)
	telemetry.WorkerDuration.WithLabelValues(ScriptAnalysis).Observe(time.Since(start).Seconds())

	if w.registry.Cancelled(model.JobClassAnalysis) {
		w.log.Info("analysis run was cancelled, discarding outcome", zap.String("line", payload.Line))
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassAnalysis), "cancelled").Inc()
		return nil
	}

	if err != nil {
		w.log.Error("analysis worker failed", zap.String("line", payload.Line), zap.Error(err))
		w.registry.Fail(model.JobClassAnalysis, truncateForReport(err.Error()), nil)
		w.notifier.Notify(ctx, fmt.Sprintf("Analysis generation failed for line %s.", payload.Line), model.NotificationFailed)
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassAnalysis), "error").Inc()
		return nil
	}

	w.log.Info("analysis completed", zap.String("line", payload.Line), zap.Int("stdout_bytes", len(out.Stdout)))
	w.registry.Finish(model.JobClassAnalysis, nil, fmt.Sprintf("Analysis for line %s completed.", payload.Line))
	w.notifier.Notify(ctx, fmt.Sprintf("Analysis for line %s is ready.", payload.Line), model.NotificationCompleted)
	telemetry.JobsFinished.WithLabelValues(string(model.JobClassAnalysis), "finished").Inc()
	return nil
}
