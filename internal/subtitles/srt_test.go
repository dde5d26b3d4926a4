package subtitles

import (
	"strings"
	"testing"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,500
Hello there

2
00:00:04,250 --> 00:00:06,000
General Kenobi
you are a bold one

not a block

3
00:00:07,000 --> 00:00:08,000
`

func TestParse(t *testing.T) {
	segments := Parse(sampleSRT)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segments), segments)
	}
	first := segments[0]
	if first.Index != 1 || first.StartTime != "00:00:01,000" || first.EndTime != "00:00:03,500" {
		t.Fatalf("unexpected first segment %+v", first)
	}
	if first.Timestamp != [2]float64{1, 3.5} {
		t.Fatalf("unexpected timestamp %v", first.Timestamp)
	}
	if segments[1].Text != "General Kenobi\nyou are a bold one" {
		t.Fatalf("expected multi-line text, got %q", segments[1].Text)
	}
}

func TestParseHandlesCRLFAndBOM(t *testing.T) {
	content := "\ufeff1\r\n00:00:00.500 --> 00:00:01.000\r\nHi\r\n"
	segments := Parse(content)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].StartTime != "00:00:00,500" {
		t.Fatalf("expected comma-normalized timestamp, got %q", segments[0].StartTime)
	}
}

func TestParseEmpty(t *testing.T) {
	if got := Parse("   \n\n"); got != nil {
		t.Fatalf("expected nil for blank content, got %+v", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.001, "00:01:01,001"},
		{3725.999, "01:02:05,999"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFromCuesSkipsEmptyText(t *testing.T) {
	segments := FromCues([]Cue{
		{Start: 0, End: 1, Text: " first "},
		{Start: 1, End: 2, Text: "   "},
		{Start: 2, End: 3.25, Text: "third"},
	})
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[1].Index != 2 || segments[1].Text != "third" || segments[1].EndTime != "00:00:03,250" {
		t.Fatalf("unexpected renumbered segment %+v", segments[1])
	}
}

func TestFormatRoundTripsThroughParse(t *testing.T) {
	segments := FromCues([]Cue{{Start: 0.5, End: 2, Text: "one"}, {Start: 2.5, End: 4, Text: "two"}})
	rendered := Format(segments)
	if !strings.HasPrefix(rendered, "1\n00:00:00,500 --> 00:00:02,000\none\n\n2\n") {
		t.Fatalf("unexpected rendering %q", rendered)
	}
	parsed := Parse(rendered)
	if len(parsed) != len(segments) {
		t.Fatalf("round trip lost segments: %d vs %d", len(parsed), len(segments))
	}
	for i := range parsed {
		if parsed[i] != segments[i] {
			t.Fatalf("segment %d differs: %+v vs %+v", i, parsed[i], segments[i])
		}
	}
}

func TestApplyTexts(t *testing.T) {
	segments := Parse(sampleSRT)
	out, err := ApplyTexts(segments, []string{"Hola", ""})
	if err != nil {
		t.Fatalf("ApplyTexts: %v", err)
	}
	if out[0].Text != "Hola" || out[1].Text != segments[1].Text {
		t.Fatalf("unexpected texts %q %q", out[0].Text, out[1].Text)
	}
	if segments[0].Text != "Hello there" {
		t.Fatal("ApplyTexts must not mutate its input")
	}
	if _, err := ApplyTexts(segments, []string{"only one"}); err == nil {
		t.Fatal("expected mismatch error")
	}
}
