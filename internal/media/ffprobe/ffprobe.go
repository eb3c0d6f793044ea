package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// entries limits ffprobe's output to what Result decodes.
const entries = "stream=codec_type,width,height,avg_frame_rate,r_frame_rate,duration:format=duration"

// Result is the subset of ffprobe's JSON report clipgif reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one entry of the report's streams array.
type Stream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
}

// Format holds container-level fields.
type Format struct {
	Duration string `json:"duration"`
}

// Inspect runs binary (ffprobe when blank) on path and parses its report.
// ffprobe's stderr is attached to the error when it exits non-zero.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner",
		"-show_entries", entries, "-of", "json", "--", path)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Result{}, fmt.Errorf("ffprobe inspect %s: %w: %s", path, err, msg)
		}
		return Result{}, fmt.Errorf("ffprobe inspect %s: %w", path, err)
	}
	return Parse(out)
}

// Parse decodes an ffprobe JSON report.
func Parse(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return r, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}

// Duration is the container duration, or the video stream's when the
// container reports none. Zero means unknown.
func (r Result) Duration() time.Duration {
	secs, ok := seconds(r.Format.Duration)
	if !ok {
		if video, found := r.VideoStream(); found {
			secs, ok = seconds(video.Duration)
		}
	}
	if !ok {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// FrameRate is the average frame rate in Hz, falling back to r_frame_rate.
// Zero means unknown.
func (s Stream) FrameRate() float64 {
	for _, v := range []string{s.AvgFrameRate, s.RFrameRate} {
		if rate, ok := rational(v); ok {
			return rate
		}
	}
	return 0
}

// rational parses "num/den" or a plain number. Only positive finite results
// are reported ok.
func rational(v string) (float64, bool) {
	num, den, isFraction := strings.Cut(strings.TrimSpace(v), "/")
	n, ok := seconds(num)
	if !ok || !isFraction {
		return n, ok
	}
	d, ok := seconds(den)
	if !ok {
		return 0, false
	}
	return n / d, true
}

// seconds parses a positive decimal; "N/A", blanks and zero are not ok.
func seconds(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || !(f > 0) || math.IsInf(f, 1) {
		return 0, false
	}
	return f, true
}
