package pipeline

import (
	"time"

	"clipgif/internal/progress"
)

// RunInfo identifies a run when it starts.
type RunInfo struct {
	ID        string
	// Clip is the label attached with services.WithClip, if any.
	Clip      string
	Config    Configuration
	Derived   Derived
	StartedAt time.Time
}

// Observer receives run events. Calls for one run are serialized and none
// arrive after that run's terminal event (Completed, Aborted or Failed).
// Callbacks run with no orchestrator lock held, so they may call Abort; an
// Aborted issued that way is delivered after the current callback returns.
// They must not call Start, Wait or Close. Progress percent runs from 0 to
// 100 and never decreases within a run.
type Observer interface {
	Started(RunInfo)
	Progress(status progress.Status, percent float64)
	Completed(Result)
	Aborted(Result)
	Failed(Result)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStarted   func(RunInfo)
	OnProgress  func(status progress.Status, percent float64)
	OnCompleted func(Result)
	OnAborted   func(Result)
	OnFailed    func(Result)
}

func (f ObserverFuncs) Started(info RunInfo) {
	if f.OnStarted != nil {
		f.OnStarted(info)
	}
}

func (f ObserverFuncs) Progress(status progress.Status, percent float64) {
	if f.OnProgress != nil {
		f.OnProgress(status, percent)
	}
}

func (f ObserverFuncs) Completed(r Result) {
	if f.OnCompleted != nil {
		f.OnCompleted(r)
	}
}

func (f ObserverFuncs) Aborted(r Result) {
	if f.OnAborted != nil {
		f.OnAborted(r)
	}
}

func (f ObserverFuncs) Failed(r Result) {
	if f.OnFailed != nil {
		f.OnFailed(r)
	}
}

// Observers fans events out to each observer in order.
type Observers []Observer

func (o Observers) Started(info RunInfo) {
	for _, obs := range o {
		obs.Started(info)
	}
}

func (o Observers) Progress(status progress.Status, percent float64) {
	for _, obs := range o {
		obs.Progress(status, percent)
	}
}

func (o Observers) Completed(r Result) {
	for _, obs := range o {
		obs.Completed(r)
	}
}

func (o Observers) Aborted(r Result) {
	for _, obs := range o {
		obs.Aborted(r)
	}
}

func (o Observers) Failed(r Result) {
	for _, obs := range o {
		obs.Failed(r)
	}
}
