package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	clipKey      contextKey = "clip"
	batchIDKey   contextKey = "batch_id"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithClip annotates context with the clip name (batch entry or input base name).
func WithClip(ctx context.Context, clip string) context.Context {
	if clip == "" {
		return ctx
	}
	return context.WithValue(ctx, clipKey, clip)
}

// ClipFromContext returns the clip name if present.
func ClipFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(clipKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithBatchID tags every run started under ctx as part of one batch.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext returns the batch identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(batchIDKey).(string)
	return v, ok && v != ""
}
