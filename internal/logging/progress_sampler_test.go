package logging

import "testing"

func TestNewProgressSamplerDefaultsBucket(t *testing.T) {
	for _, width := range []float64{0, -3} {
		if s := NewProgressSampler(width); s.bucket != 5 {
			t.Fatalf("NewProgressSampler(%v).bucket = %v, want 5", width, s.bucket)
		}
	}
}

func TestProgressSamplerNilAllowsAll(t *testing.T) {
	var s *ProgressSampler
	if !s.Allow("transcribe", 42) {
		t.Fatal("nil sampler should allow every update")
	}
}

func TestProgressSamplerAllow(t *testing.T) {
	type update struct {
		stage   string
		percent float64
		want    bool
	}
	tests := []struct {
		name    string
		bucket  float64
		updates []update
	}{
		{
			name:   "buckets within one stage",
			bucket: 10,
			updates: []update{
				{"processing", 0, true},
				{"processing", 4, false},
				{"processing", 10, true},
				{"processing", 19.9, false},
				{"processing", 35, true},
			},
		},
		{
			name:   "stage change restarts buckets",
			bucket: 10,
			updates: []update{
				{"loading", 60, true},
				{"processing", 10, true},
				{"processing", 15, false},
				{"  processing ", 20, true},
			},
		},
		{
			name:   "completion reported once",
			bucket: 25,
			updates: []update{
				{"finalizing", 90, true},
				{"finalizing", 100, true},
				{"finalizing", 100, false},
				{"finalizing", 130, false},
			},
		},
		{
			name:   "unknown percent only counts stage changes",
			bucket: 5,
			updates: []update{
				{"", -1, false},
				{"loading", -1, true},
				{"loading", -1, false},
				{"loading", 0, true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucket)
			for i, u := range tt.updates {
				if got := s.Allow(u.stage, u.percent); got != u.want {
					t.Fatalf("update %d (%q, %v): Allow = %v, want %v", i, u.stage, u.percent, got, u.want)
				}
			}
		})
	}
}
