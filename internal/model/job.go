package model

// JobStatus is the registry slot for one job class.
type JobStatus struct {
	State   JobState     `json:"status"`
	Results []UnitResult `json:"results,omitempty"`
	Error   *string      `json:"error"`
	Message *string      `json:"message,omitempty"`
}

// UnitResult is the settled outcome of one production line's worker run.
type UnitResult struct {
	Line       string     `json:"line"`
	Status     UnitStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Inserted   int        `json:"inserted,omitempty"`
	Duplicates int        `json:"duplicates,omitempty"`
	Details    string     `json:"details,omitempty"`
}

// IdleStatus returns the initial slot value for a job class.
func IdleStatus() JobStatus {
	return JobStatus{State: JobStateIdle}
}

// PipelineTaskPayload is carried by a pipeline:run task.
type PipelineTaskPayload struct {
	Units []PipelineUnit `json:"units"`
}

// PipelineUnit is one production line's input within a pipeline run.
// Incomplete or unreadable pairs are carried through with Skip set so
// the orchestrator can report them without spawning a worker.
type PipelineUnit struct {
	Line       string `json:"line"`
	File1B64   string `json:"file1_b64,omitempty"`
	File2B64   string `json:"file2_b64,omitempty"`
	Filename1  string `json:"originalname1,omitempty"`
	Filename2  string `json:"originalname2,omitempty"`
	Skip       bool   `json:"skip,omitempty"`
	SkipReason string `json:"skipReason,omitempty"`
}

// AnalysisTaskPayload is carried by an analysis:run task.
type AnalysisTaskPayload struct {
	Line string `json:"line"`
}

// TrainingTaskPayload is carried by a training:run task.
type TrainingTaskPayload struct {
	Lines  []string `json:"lines,omitempty"`
	Models []string `json:"models,omitempty"`
}
