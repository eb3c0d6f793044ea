package pipeline

import "time"

// State is the orchestrator's position in the run lifecycle.
type State int

const (
	Idle State = iota
	Preparing
	Capturing
	Finalizing
	Completed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case Capturing:
		return "capturing"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transitions follow s within a run.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}

// Outcome is the terminal result class of a run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota + 1
	OutcomeAborted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one run. Blob, Width and Height are only
// set for completed runs; Err only for failed ones.
type Result struct {
	RunID   string
	Outcome Outcome
	Blob    []byte
	Width   int
	Height  int
	Frames  int
	Err     error
	Elapsed time.Duration
}
