package logging

import "strings"

const defaultProgressStep = 10

// ProgressSampler thins progress events for logging. An event passes when the
// status label changes or the percent enters a higher step bucket.
type ProgressSampler struct {
	step   float64
	status string
	bucket int
}

// NewProgressSampler returns a sampler with buckets step percent wide.
// Non-positive steps fall back to 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = defaultProgressStep
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog reports whether the event passes. A negative percent means the
// ratio is unknown and only the status is compared. A nil sampler passes
// everything.
func (s *ProgressSampler) ShouldLog(percent float64, status string) bool {
	if s == nil {
		return true
	}
	pass := false
	if status = strings.TrimSpace(status); status != "" && status != s.status {
		s.status = status
		pass = true
	}
	if percent < 0 {
		return pass
	}
	if b := int(min(percent, 100) / s.step); b > s.bucket {
		s.bucket = b
		pass = true
	}
	return pass
}

// Reset forgets the last status and bucket.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.status, s.bucket = "", -1
	}
}
