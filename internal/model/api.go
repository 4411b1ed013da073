package model

// JobAcceptedResponse acknowledges an accepted asynchronous job. The
// outcome is observed via the status endpoints or the push channel.
type JobAcceptedResponse struct {
	Message string `json:"message"`
}

// PipelineCancelResponse reports the registry state after a cancel request.
type PipelineCancelResponse struct {
	Success bool     `json:"success"`
	Status  JobState `json:"status"`
}

// AnalysisGenerateRequest selects the production line to analyze.
type AnalysisGenerateRequest struct {
	Line string `json:"line" validate:"required,oneof=D E F"`
}

// TrainingStartRequest narrows training to specific lines and model kinds.
// Empty slices mean "all".
type TrainingStartRequest struct {
	Lines  []string `json:"lines" validate:"omitempty,dive,oneof=D E F"`
	Models []string `json:"models" validate:"omitempty,min=1,dive,required"`
}

// PredictRequest asks a trained model for a prediction.
type PredictRequest struct {
	ModelName string             `json:"model_name" validate:"required"`
	Features  map[string]float64 `json:"features" validate:"required,min=1"`
}

// ModelFeaturesRequest asks for the feature names a line's models expect.
type ModelFeaturesRequest struct {
	Line string `json:"line" validate:"required,oneof=D E F"`
}

// ModelNameRequest addresses a single trained model.
type ModelNameRequest struct {
	ModelName string `json:"model_name" validate:"required"`
}

// MarkReadResponse acknowledges a bulk mark-as-read.
type MarkReadResponse struct {
	Message string `json:"message"`
}
