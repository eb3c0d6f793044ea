package history

import "time"

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Run is one persisted pipeline run.
type Run struct {
	ID          int64
	RunID       string
	Clip        string
	Backend     string
	OutputPath  string
	StartMs     float64
	EndMs       float64
	FrameRate   float64
	Width       int
	Height      int
	Quality     int
	Status      Status
	FailureKind string
	Error       string
	Frames      int
	Bytes       int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the wall time of a finished run, zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome carries the terminal fields written by Finish.
type Outcome struct {
	Status      Status
	FailureKind string
	Error       string
	Frames      int
	Bytes       int
	FinishedAt  time.Time
}
