package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"clipgif/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreBeginFinishGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Begin(ctx, history.Run{
		RunID: "run-1", Clip: "intro.mp4", Backend: "gif",
		StartMs: 0, EndMs: 1000, FrameRate: 10, Width: 480, Height: 270, Quality: 5,
		StartedAt: started,
	}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	run, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != history.StatusRunning || run.Clip != "intro.mp4" || !run.StartedAt.Equal(started) {
		t.Fatalf("unexpected running row: %#v", run)
	}
	if run.Duration() != 0 {
		t.Fatalf("running duration = %s", run.Duration())
	}

	if err := store.Finish(ctx, "run-1", history.Outcome{
		Status: history.StatusCompleted, Frames: 10, Bytes: 2048, FinishedAt: started.Add(3 * time.Second),
	}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.SetOutput(ctx, "run-1", "/tmp/out.gif"); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}

	run, err = store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != history.StatusCompleted || run.Frames != 10 || run.Bytes != 2048 || run.OutputPath != "/tmp/out.gif" {
		t.Fatalf("unexpected finished row: %#v", run)
	}
	if run.Duration() != 3*time.Second {
		t.Fatalf("duration = %s", run.Duration())
	}
}

func TestStoreUnknownRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Get = %v", err)
	}
	if err := store.Finish(ctx, "missing", history.Outcome{Status: history.StatusAborted}); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Finish = %v", err)
	}
	if err := store.Begin(ctx, history.Run{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestStoreListOrderingAndFilter(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Begin(ctx, history.Run{RunID: id, EndMs: 1000, FrameRate: 10, Width: 1, Height: 1, Quality: 5, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Begin %s: %v", id, err)
		}
	}
	if err := store.Finish(ctx, "b", history.Outcome{Status: history.StatusFailed, FailureKind: "source", Error: "seek failed"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "c" || all[2].RunID != "a" {
		t.Fatalf("unexpected order: %v", ids(all))
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %v", ids(limited))
	}

	failed, err := store.List(ctx, 0, history.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].FailureKind != "source" || failed[0].Error != "seek failed" {
		t.Fatalf("unexpected failed rows: %#v", failed)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[history.StatusRunning] != 2 || counts[history.StatusFailed] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestStoreResetStaleAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	for _, id := range []string{"stale", "done"} {
		if err := store.Begin(ctx, history.Run{RunID: id, EndMs: 1000, FrameRate: 10, Width: 1, Height: 1, Quality: 5, StartedAt: old}); err != nil {
			t.Fatalf("Begin: %v", err)
		}
	}
	if err := store.Finish(ctx, "done", history.Outcome{Status: history.StatusCompleted}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	n, err := store.ResetStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetStale = %d, %v", n, err)
	}
	run, err := store.Get(ctx, "stale")
	if err != nil || run.Status != history.StatusAborted {
		t.Fatalf("stale row = %#v, %v", run, err)
	}

	pruned, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || pruned != 2 {
		t.Fatalf("Prune = %d, %v", pruned, err)
	}
}

func TestStoreReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := history.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Begin(ctx, history.Run{RunID: "keep", EndMs: 1, FrameRate: 1, Width: 1, Height: 1, Quality: 1}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = store.Close()

	store, err = history.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.Get(ctx, "keep"); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(context.Background(), path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func ids(runs []*history.Run) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.RunID)
	}
	return out
}
