package main

import (
	"testing"

	"vidsub/internal/workflow"
)

func TestFormatProgress(t *testing.T) {
	cases := []struct {
		step    workflow.Step
		percent float64
		detail  string
		want    string
	}{
		{workflow.StepExtract, 12.4, "extracting audio", "[extract]  12% extracting audio"},
		{workflow.StepTranslate, 140, "", "[translate] 100%"},
		{workflow.StepMerge, -3, "  ", "[merge]   0%"},
	}
	for _, tc := range cases {
		if got := formatProgress(tc.step, tc.percent, tc.detail); got != tc.want {
			t.Errorf("formatProgress(%v, %v, %q) = %q, want %q", tc.step, tc.percent, tc.detail, got, tc.want)
		}
	}
}

func TestCueSummary(t *testing.T) {
	if got := cueSummary(""); got != "-" {
		t.Fatalf("cueSummary(empty) = %q", got)
	}
	srt := "1\r\n00:00:00,000 --> 00:00:01,000\r\nHi\r\n"
	if got := cueSummary(srt); got != "1 cues" {
		t.Fatalf("cueSummary = %q", got)
	}
}

func TestStepViewLabels(t *testing.T) {
	cases := map[string]stepView{
		"current": {Current: true, Completed: true},
		"done":    {Completed: true},
		"open":    {Accessible: true},
		"locked":  {},
	}
	for want, view := range cases {
		if got := view.label(); got != want {
			t.Errorf("label = %q, want %q", got, want)
		}
	}
}

func TestStepPath(t *testing.T) {
	cases := map[string]string{
		"2":         "/step-2",
		"translate": "/step-3",
		"/step-4/":  "/step-4",
		" Merge ":   "/step-4",
	}
	for in, want := range cases {
		got, err := stepPath(in)
		if err != nil || got != want {
			t.Errorf("stepPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"/step-x", "/steps-1", "9", "encode"} {
		if _, err := stepPath(bad); err == nil {
			t.Errorf("stepPath(%q) expected error", bad)
		}
	}
}
