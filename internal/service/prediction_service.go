package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/runner"
	"github.com/kpipulse/api/internal/telemetry"
)

// ScriptPredict is the prediction worker invoked synchronously per
// request, unlike the queued pipeline scripts.
const ScriptPredict = "predict.py"

// ScriptRunner resolves and runs an external worker script.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string, args []string, stdin []byte) (runner.Outcome, error)
}

// PredictionService answers prediction queries by invoking the
// prediction worker once per call and decoding its JSON result.
type PredictionService struct {
	sup ScriptRunner
	log *zap.Logger
}

func NewPredictionService(sup ScriptRunner, log *zap.Logger) *PredictionService {
	return &PredictionService{sup: sup, log: log}
}

// Predict scores one feature vector with the named model.
func (s *PredictionService) Predict(ctx context.Context, modelName string, features map[string]float64) (map[string]any, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, []string{"predict", modelName, string(payload)}, runner.ParseJSON)
}

// Features returns the feature names the line's model expects.
func (s *PredictionService) Features(ctx context.Context, line string) (map[string]any, error) {
	return s.run(ctx, []string{"get_features", line}, runner.ParseJSON)
}

// Metrics returns the stored evaluation metrics of the named model.
func (s *PredictionService) Metrics(ctx context.Context, modelName string) (map[string]any, error) {
	return s.run(ctx, []string{"get_metrics", modelName}, runner.ParseJSON)
}

// Equation returns the symbolic equation of the named model. The worker
// prints progress chatter first, so only the last JSON line counts.
func (s *PredictionService) Equation(ctx context.Context, modelName string) (map[string]any, error) {
	return s.run(ctx, []string{"get_equation", modelName}, runner.LastJSONLine)
}

func (s *PredictionService) run(ctx context.Context, args []string, decode func([]byte, any) error) (map[string]any, error) {
	start := time.Now()
	out, err := s.sup.RunScript(ctx, ScriptPredict, args, nil)
	telemetry.WorkerDuration.WithLabelValues(ScriptPredict).Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("prediction worker failed", zap.Strings("args", args), zap.Error(err))
		return nil, err
	}

	var result map[string]any
	if err := decode(out.Stdout, &result); err != nil {
		s.log.Error("prediction worker returned unparseable output", zap.Strings("args", args), zap.Error(err))
		return nil, err
	}
	return result, nil
}
