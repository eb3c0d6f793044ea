package history

import (
	"database/sql"
	"strings"
	"time"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id          int64
		runID       string
		clip        sql.NullString
		backend     sql.NullString
		outputPath  sql.NullString
		startMs     float64
		endMs       float64
		frameRate   float64
		width       int
		height      int
		quality     int
		statusStr   string
		failureKind sql.NullString
		errorMsg    sql.NullString
		frames      int
		bytes       int
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&runID,
		&clip,
		&backend,
		&outputPath,
		&startMs,
		&endMs,
		&frameRate,
		&width,
		&height,
		&quality,
		&statusStr,
		&failureKind,
		&errorMsg,
		&frames,
		&bytes,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	return &Run{
		ID:          id,
		RunID:       runID,
		Clip:        clip.String,
		Backend:     backend.String,
		OutputPath:  outputPath.String,
		StartMs:     startMs,
		EndMs:       endMs,
		FrameRate:   frameRate,
		Width:       width,
		Height:      height,
		Quality:     quality,
		Status:      Status(statusStr),
		FailureKind: failureKind.String,
		Error:       errorMsg.String,
		Frames:      frames,
		Bytes:       bytes,
		StartedAt:   parseTime(startedRaw),
		FinishedAt:  parseTime(finishedRaw.String),
	}, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
