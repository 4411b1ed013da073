package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/runner"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/store"
	"github.com/kpipulse/api/internal/telemetry"
)

// Worker scripts launched by the background jobs.
const (
	ScriptFusion   = "full_pipeline_memory.py"
	ScriptAnalysis = "statistics_analyzer.py"
	ScriptTraining = "pretrain_models.py"
)

// ScriptRunner resolves and runs an external worker script.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, args []string, stdin []byte) (runner.Outcome, error)
}

// RecordInserter persists fused records with insert-only semantics.
type RecordInserter interface {
	InsertUnique(ctx context.Context, records []model.Record) (store.InsertResult, error)
}

// Notifier records and pushes job lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, message string, status model.NotificationStatus)
}

// fusionInput is the JSON payload delivered on a fusion worker's stdin.
type fusionInput struct {
	Line      string `json:"line"`
	File1B64  string `json:"file1_b64"`
	File2B64  string `json:"file2_b64"`
	Filename1 string `json:"originalname1"`
	Filename2 string `json:"originalname2"`
}

// PipelineWorker executes one queued fusion run: a worker process per
// production line, fanned out concurrently and collected in full before
// the job settles. One line's failure never interrupts its siblings.
type PipelineWorker struct {
	registry *status.Registry
	sup      ScriptRunner
	records  RecordInserter
	notifier Notifier
	log      *zap.Logger
}

func NewPipelineWorker(registry *status.Registry, sup ScriptRunner, records RecordInserter, notifier Notifier, log *zap.Logger) *PipelineWorker {
	return &PipelineWorker{
		registry: registry,
		sup:      sup,
		records:  records,
		notifier: notifier,
		log:      log,
	}
}

// ProcessTask implements asynq.Handler. It always returns nil for
// domain failures: the job outcome lives in the status registry, and a
// retried run would re-spawn expensive worker processes for nothing.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.PipelineTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.log.Error("malformed pipeline task payload", zap.Error(err))
		w.registry.Fail(model.JobClassPipeline, "malformed task payload", nil)
		return nil
	}

	results := w.runUnits(ctx, payload.Units)

	if w.registry.Cancelled(model.JobClassPipeline) {
		w.log.Info("pipeline run was cancelled, discarding outcome", zap.Int("units", len(results)))
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassPipeline), "cancelled").Inc()
		return nil
	}

	failed := 0
	for _, r := range results {
		if r.Status == model.UnitStatusError {
			failed++
		}
	}

	if failed == 0 {
		w.registry.Finish(model.JobClassPipeline, results, "Processing completed.")
		w.notifier.Notify(ctx, fmt.Sprintf("Data processing completed for lines %s.", strings.Join(resultLines(results), ", ")), model.NotificationCompleted)
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassPipeline), "finished").Inc()
	} else {
		w.registry.Fail(model.JobClassPipeline, fmt.Sprintf("%d of %d lines failed", failed, len(results)), results)
		w.notifier.Notify(ctx, fmt.Sprintf("Data processing failed for %d of %d lines.", failed, len(results)), model.NotificationFailed)
		telemetry.JobsFinished.WithLabelValues(string(model.JobClassPipeline), "error").Inc()
	}
	return nil
}

// runUnits fans one goroutine out per runnable unit and waits for all of
// them. Results arrive in completion order.
func (w *PipelineWorker) runUnits(ctx context.Context, units []model.PipelineUnit) []model.UnitResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []model.UnitResult
	)

	for _, unit := range units {
		if unit.Skip {
			// Appended under mu: earlier unit goroutines may already be
			// writing their results.
			mu.Lock()
			results = append(results, model.UnitResult{
				Line:    unit.Line,
				Status:  model.UnitStatusSkipped,
				Message: unit.SkipReason,
			})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(u model.PipelineUnit) {
			defer wg.Done()
			res := w.runUnit(ctx, u)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(unit)
	}

	wg.Wait()
	return results
}

// runUnit drives one production line end to end: spawn the fusion
// worker, parse its line-delimited output and bulk-insert the records.
func (w *PipelineWorker) runUnit(ctx context.Context, u model.PipelineUnit) model.UnitResult {
	stdin, err := json.Marshal(fusionInput{
		Line:      u.Line,
		File1B64:  u.File1B64,
		File2B64:  u.File2B64,
		Filename1: u.Filename1,
		Filename2: u.Filename2,
	})
	if err != nil {
		return model.UnitResult{Line: u.Line, Status: model.UnitStatusError, Message: "failed to encode worker input", Details: err.Error()}
	}

	start := time.Now()
	out, err := w.sup.RunScript(ctx, ScriptFusion, nil, stdin)
	telemetry.WorkerDuration.WithLabelValues(ScriptFusion).Observe(time.Since(start).Seconds())
	if err != nil {
		return w.classifyRunError(u.Line, out, err)
	}

	records, dropped := w.parseRecords(u.Line, out.Stdout)
	if len(records) == 0 {
		return model.UnitResult{
			Line:    u.Line,
			Status:  model.UnitStatusError,
			Message: "worker produced no valid documents",
			Details: truncateForReport(string(out.Stdout)),
		}
	}

	res, err := w.records.InsertUnique(ctx, records)
	if err != nil {
		// Committed batches stay committed; the report carries the
		// partial counts alongside the failure.
		return model.UnitResult{
			Line:       u.Line,
			Status:     model.UnitStatusError,
			Message:    "database insert failed",
			Inserted:   res.Inserted,
			Duplicates: res.Duplicates,
			Details:    err.Error(),
		}
	}

	telemetry.RecordsInserted.Add(float64(res.Inserted))
	telemetry.RecordsDuplicate.Add(float64(res.Duplicates))
	w.log.Info("pipeline unit completed",
		zap.String("line", u.Line),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("dropped", dropped),
	)

	return model.UnitResult{
		Line:       u.Line,
		Status:     model.UnitStatusSuccess,
		Inserted:   res.Inserted,
		Duplicates: res.Duplicates,
	}
}

// parseRecords decodes line-delimited worker output. Malformed lines are
// dropped with a logged diagnostic; they never fail the unit on their own.
func (w *PipelineWorker) parseRecords(line string, stdout []byte) ([]model.Record, int) {
	var (
		records []model.Record
		dropped int
	)
	for _, raw := range runner.Lines(stdout) {
		rec, err := model.ParseRecord(raw)
		if err != nil {
			dropped++
			w.log.Warn("dropping malformed worker output line",
				zap.String("line", line),
				zap.String("fragment", truncateForReport(string(raw))),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

func (w *PipelineWorker) classifyRunError(line string, out runner.Outcome, err error) model.UnitResult {
	res := model.UnitResult{Line: line, Status: model.UnitStatusError}

	var execErr *runner.ExecError
	var spawnErr *runner.SpawnError
	switch {
	case errors.Is(err, runner.ErrScriptNotFound):
		res.Message = "worker script not found"
		res.Details = err.Error()
	case errors.As(err, &execErr):
		if execErr.TimedOut {
			res.Message = "worker timed out"
		} else {
			res.Message = fmt.Sprintf("worker failed with exit code %d", execErr.ExitCode)
		}
		detail := execErr.Stderr
		if strings.TrimSpace(detail) == "" {
			detail = execErr.Stdout
		}
		res.Details = truncateForReport(detail)
	case errors.As(err, &spawnErr):
		res.Message = "failed to launch worker process"
		res.Details = err.Error()
	default:
		res.Message = "worker execution failed"
		res.Details = err.Error()
	}

	w.log.Error("pipeline unit failed",
		zap.String("line", line),
		zap.String("reason", res.Message),
		zap.Int("stdout_bytes", len(out.Stdout)),
	)
	return res
}

func resultLines(results []model.UnitResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.Line)
	}
	return lines
}

const reportDetailLimit = 2048

func truncateForReport(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= reportDetailLimit {
		return s
	}
	return s[:reportDetailLimit] + "... (truncated)"
}
