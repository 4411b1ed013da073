package model

// Job classes
type JobClass string

const (
	JobClassPipeline JobClass = "pipeline"
	JobClassAnalysis JobClass = "analysis"
	JobClassTraining JobClass = "training"
)

var ValidJobClasses = []JobClass{
	JobClassPipeline, JobClassAnalysis, JobClassTraining,
}

// Job states
type JobState string

const (
	JobStateIdle      JobState = "idle"
	JobStateRunning   JobState = "running"
	JobStateFinished  JobState = "finished"
	JobStateError     JobState = "error"
	JobStateCancelled JobState = "cancelled"
)

// Per-unit outcomes within a pipeline run
type UnitStatus string

const (
	UnitStatusSuccess UnitStatus = "success"
	UnitStatusError   UnitStatus = "error"
	UnitStatusSkipped UnitStatus = "skipped"
)

// Notification statuses
type NotificationStatus string

const (
	NotificationInProgress NotificationStatus = "in-progress"
	NotificationCompleted  NotificationStatus = "completed"
	NotificationFailed     NotificationStatus = "failed"
)

// Production lines
const (
	LineD = "D"
	LineE = "E"
	LineF = "F"
)

var ValidLines = []string{LineD, LineE, LineF}

// IsValidLine reports whether l names a known production line.
func IsValidLine(l string) bool {
	for _, v := range ValidLines {
		if v == l {
			return true
		}
	}
	return false
}
