package preflight

import (
	"context"
	"fmt"
	"path/filepath"

	"clipgif/internal/config"
	"clipgif/internal/deps"
)

// Result reports the outcome of a single preflight check. A Warning result
// is informational and never blocks a run.
type Result struct {
	Name    string
	Passed  bool
	Warning bool
	Detail  string
}

// Blocking reports whether the result should stop a run.
func (r Result) Blocking() bool {
	return !r.Passed && !r.Warning
}

// Clip describes the capture a resource estimate is computed for.
type Clip struct {
	Frames int
	Width  int
	Height int
}

// RunAll executes every preflight check for cfg and clip.
func RunAll(ctx context.Context, cfg *config.Config, clip Clip) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.HistoryDB != "" {
		results = append(results, CheckDirectoryAccess("History directory", filepath.Dir(cfg.Paths.HistoryDB)))
	}
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromDependency(status))
	}
	results = append(results, CheckMemory(ctx, EstimateMemory(clip)))
	results = append(results, CheckDiskSpace(ctx, cfg.Paths.OutputDir, EstimateOutput(clip)))
	return results
}

// Failed returns the blocking results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Blocking() {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	res := Result{Name: status.Name, Passed: status.Available, Warning: status.Optional && !status.Available}
	switch {
	case status.Available:
		res.Detail = fmt.Sprintf("%s (%s)", status.Command, status.Description)
	default:
		res.Detail = status.Detail
	}
	return res
}
