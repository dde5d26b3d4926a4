package logging

import "strings"

// ProgressSampler thins a stream of progress updates down to the ones worth a
// log line: the first update of each stage, each new percent bucket, and the
// first update at or above 100. Unknown percentages are negative.
// The zero value is not usable; a nil sampler allows everything.
type ProgressSampler struct {
	bucket float64
	stage  string
	last   int
}

// NewProgressSampler returns a sampler with the given bucket width in percent.
// Widths of zero or less fall back to 5.
func NewProgressSampler(bucket float64) *ProgressSampler {
	if bucket <= 0 {
		bucket = 5
	}
	return &ProgressSampler{bucket: bucket, last: -1}
}

// Allow reports whether an update for stage at percent should be emitted.
func (s *ProgressSampler) Allow(stage string, percent float64) bool {
	if s == nil {
		return true
	}
	allow := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.last = -1
		allow = true
	}
	if percent < 0 {
		return allow
	}
	bucket := int(min(percent, 100) / s.bucket)
	if bucket > s.last {
		s.last = bucket
		allow = true
	}
	return allow
}
