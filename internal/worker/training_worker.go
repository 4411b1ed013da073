package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/telemetry"
)

// TrainingWorker executes one queued model-training run. Trained model
// artifacts are written by the script; only the outcome is tracked here.
type TrainingWorker struct {
	registry *status.Registry
	sup      ScriptRunner
	notifier Notifier
	log      *zap.Logger
}

func NewTrainingWorker(registry *status.Registry, sup ScriptRunner, notifier Notifier, log *zap.Logger) *TrainingWorker {
	return &TrainingWorker{registry: registry, sup: sup, notifier: notifier, log: log}
}

// ProcessTask implements asynq.Handler; domain failures settle in the
// registry and return nil so asynq never retries an expensive run.
func (w *TrainingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.TrainingTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.log.Error("malformed training task payload", zap.Error(err))
		w.registry.Fail(model.JobClassTraining, "malformed task payload", nil)
		return nil
	}

	args := []string{"--lines", joinJSON(payload.Lines)}
	if len(payload.Models) > 0 {
		args = append(args, "--models", joinJSON(payload.Models))
	}

	start := time.Now()
	_, err := w.sup.RunScript(ctx, ScriptTraining, args, nil)
	telemetry.WorkerDuration.WithLabelValues(ScriptTraining).Observe(time.Since(start).Seconds())

	if w.registry.Cancelled(model.JobClassTraining) {
		w.log.Info("training run was cancelled, discarding outcome", zap.Strings("lines", payload.Lines))
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassTraining), "cancelled").Inc()
		return nil
	}

	lines := strings.Join(payload.Lines, ", ")
	if err != nil {
		w.log.Error("training worker failed", zap.Strings("lines", payload.Lines), zap.Error(err))
		w.registry.Fail(model.JobClassTraining, truncateForReport(err.Error()), nil)
		w.notifier.Notify(ctx, "Model training failed for lines "+lines+".", model.NotificationFailed)
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassTraining), "error").Inc()
		return nil
	}

	w.registry.Finish(model.JobClassTraining, nil, "Model training completed for lines "+lines+".")
	w.notifier.Notify(ctx, "Model training completed for lines "+lines+".", model.NotificationCompleted)
	telemetry.JobsFinished.WithLabelValues(string(model.JobClassTraining), "finished").Inc()
	return nil
}

// joinJSON renders a string slice as the JSON array argument the
// training script expects.
func joinJSON(values []string) string {
	data, _ := json.Marshal(values)
	return string(data)
}
