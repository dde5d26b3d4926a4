package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one SRT cue.
type Segment struct {
	Index     int        `json:"index"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	Text      string     `json:"text"`
	Timestamp [2]float64 `json:"timestamp"`
}

// Cue is a timed text span before it is numbered.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

var (
	blockSeparator = regexp.MustCompile(`\n\s*\n`)
	timingLine     = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[,.]\d{3})`)
)

// Parse splits SRT content into segments. Blocks with fewer than three lines,
// a non-numeric index or an unparsable timing line are skipped.
func Parse(content string) []Segment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	if content == "" {
		return nil
	}

	var segments []Segment
	for _, block := range blockSeparator.Split(content, -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		match := timingLine.FindStringSubmatch(lines[1])
		if match == nil {
			continue
		}
		start, err := ParseTimestamp(match[1])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(match[2])
		if err != nil {
			continue
		}
		segments = append(segments, Segment{
			Index:     index,
			StartTime: normalizeTimestamp(match[1]),
			EndTime:   normalizeTimestamp(match[2]),
			Text:      strings.Join(lines[2:], "\n"),
			Timestamp: [2]float64{start, end},
		})
	}
	return segments
}

// ParseTimestamp converts HH:MM:SS,mmm (or HH:MM:SS.mmm) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Milliseconds are
// truncated, negative values clamp to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	msTotal := int64(math.Floor(seconds*1000 + 1e-6))
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// FromCues numbers cues from 1, dropping cues whose trimmed text is empty.
func FromCues(cues []Cue) []Segment {
	segments := make([]Segment, 0, len(cues))
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Index:     len(segments) + 1,
			StartTime: FormatTimestamp(cue.Start),
			EndTime:   FormatTimestamp(cue.End),
			Text:      text,
			Timestamp: [2]float64{cue.Start, cue.End},
		})
	}
	return segments
}

// Format renders segments as an SRT document.
func Format(segments []Segment) string {
	if len(segments) == 0 {
		return ""
	}
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", seg.Index, seg.StartTime, seg.EndTime, seg.Text)
	}
	return b.String()
}

// ApplyTexts returns a copy of segments with each text replaced by the
// matching entry of texts. Empty replacements keep the original text.
func ApplyTexts(segments []Segment, texts []string) ([]Segment, error) {
	if len(segments) != len(texts) {
		return nil, fmt.Errorf("segment count %d does not match text count %d", len(segments), len(texts))
	}
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		if strings.TrimSpace(texts[i]) != "" {
			out[i].Text = texts[i]
		}
	}
	return out, nil
}

// Texts returns the cue texts in order.
func Texts(segments []Segment) []string {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	return texts
}

func normalizeTimestamp(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), ".", ",")
}
