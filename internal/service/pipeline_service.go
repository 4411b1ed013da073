package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/telemetry"
)

// UploadedFile is one spreadsheet extracted from the multipart form.
// Index distinguishes the two halves of a line's pair ("1" or "2").
type UploadedFile struct {
	Line     string
	Index    string
	Filename string
	Data     []byte
}

// PipelineService owns the fusion job lifecycle: it admits at most one
// run at a time, validates the uploaded workbooks, and hands the work to
// the background queue.
type PipelineService struct {
	registry *status.Registry
	enqueuer TaskEnqueuer
	notifier Notifier
	lines    []string
	log      *zap.Logger
}

func NewPipelineService(registry *status.Registry, enqueuer TaskEnqueuer, notifier Notifier, lines []string, log *zap.Logger) *PipelineService {
	return &PipelineService{
		registry: registry,
		enqueuer: enqueuer,
		notifier: notifier,
		lines:    lines,
		log:      log,
	}
}

// BuildUnits groups uploads into per-line work units. A line with an
// incomplete pair or an unreadable workbook still yields a unit, marked
// skipped with the reason, so the final report accounts for every upload.
func (s *PipelineService) BuildUnits(files []UploadedFile) []model.PipelineUnit {
	type pair struct {
		first, second *UploadedFile
	}
	pairs := make(map[string]*pair)
	for i := range files {
		f := &files[i]
		p, ok := pairs[f.Line]
		if !ok {
			p = &pair{}
			pairs[f.Line] = p
		}
		switch f.Index {
		case "1":
			p.first = f
		case "2":
			p.second = f
		}
	}

	lines := make([]string, 0, len(pairs))
	for line := range pairs {
		lines = append(lines, line)
	}
	sort.Strings(lines)

	units := make([]model.PipelineUnit, 0, len(lines))
	for _, line := range lines {
		p := pairs[line]
		unit := model.PipelineUnit{Line: line}

		switch {
		case !s.knownLine(line):
			unit.Skip = true
			unit.SkipReason = fmt.Sprintf("unknown production line %q", line)
		case p.first == nil || p.second == nil:
			unit.Skip = true
			unit.SkipReason = "incomplete file pair, both workbooks are required"
		case !readableWorkbook(p.first.Data):
			unit.Skip = true
			unit.SkipReason = fmt.Sprintf("workbook %s is not readable", p.first.Filename)
		case !readableWorkbook(p.second.Data):
			unit.Skip = true
			unit.SkipReason = fmt.Sprintf("workbook %s is not readable", p.second.Filename)
		default:
			unit.File1B64 = base64.StdEncoding.EncodeToString(p.first.Data)
			unit.File2B64 = base64.StdEncoding.EncodeToString(p.second.Data)
			unit.Filename1 = p.first.Filename
			unit.Filename2 = p.second.Filename
		}
		if unit.Skip {
			s.log.Warn("pipeline unit skipped",
				zap.String("line", line),
				zap.String("reason", unit.SkipReason),
			)
		}
		units = append(units, unit)
	}

	return units
}

func (s *PipelineService) knownLine(line string) bool {
	for _, l := range s.lines {
		if l == line {
			return true
		}
	}
	return false
}

// readableWorkbook opens the spreadsheet in memory and checks that it
// carries at least one sheet. Broken uploads are rejected here instead of
// deep inside a worker process.
func readableWorkbook(data []byte) bool {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	defer f.Close()
	return len(f.GetSheetList()) > 0
}

// Start admits a fusion run and enqueues it. It returns
// status.ErrAlreadyRunning when a run is in flight.
func (s *PipelineService) Start(ctx context.Context, units []model.PipelineUnit) error {
	lines := unitLines(units)
	if err := s.registry.TryStart(model.JobClassPipeline, "Processing files for lines: "+strings.Join(lines, ", ")); err != nil {
		telemetry.JobConflicts.WithLabelValues(string(model.JobClassPipeline)).Inc()
		return err
	}

	task, err := newPipelineTask(model.PipelineTaskPayload{Units: units})
	if err != nil {
		s.registry.Fail(model.JobClassPipeline, "failed to encode pipeline task", nil)
		return err
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue(QueuePipeline), asynq.MaxRetry(0)); err != nil {
		s.registry.Fail(model.JobClassPipeline, "failed to enqueue pipeline task", nil)
		return err
	}

	telemetry.JobsStarted.WithLabelValues(string(model.JobClassPipeline)).Inc()
	s.notifier.Notify(ctx, fmt.Sprintf("Data processing started for lines %s.", strings.Join(lines, ", ")), model.NotificationInProgress)
	s.log.Info("pipeline run enqueued", zap.Strings("lines", lines), zap.Int("units", len(units)))
	return nil
}

// Status returns the current pipeline job status.
func (s *PipelineService) Status() model.JobStatus {
	return s.registry.Get(model.JobClassPipeline)
}

// Cancel requests cancellation of the running pipeline job. The request
// is advisory: workers already in flight finish their unit, but the job
// settles as cancelled and later finish or fail transitions are dropped.
func (s *PipelineService) Cancel(ctx context.Context) (model.JobStatus, error) {
	st, err := s.registry.Cancel(model.JobClassPipeline)
	if err != nil {
		return st, err
	}
	s.notifier.Notify(ctx, "Data processing was cancelled.", model.NotificationFailed)
	return st, nil
}

func unitLines(units []model.PipelineUnit) []string {
	lines := make([]string, 0, len(units))
	for _, u := range units {
		lines = append(lines, u.Line)
	}
	return lines
}
