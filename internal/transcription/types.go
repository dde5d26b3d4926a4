package transcription

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"vidsub/internal/subtitles"
)

// Request is the run payload: mono PCM samples in [-1, 1]. On the wire the
// samples travel as base64 little-endian float32 bytes.
type Request struct {
	Samples    []float32
	SampleRate int
}

type wireRequest struct {
	Samples    []byte `json:"samples"`
	SampleRate int    `json:"sampleRate"`
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	pcm := make([]byte, 4*len(r.Samples))
	for i, sample := range r.Samples {
		binary.LittleEndian.PutUint32(pcm[4*i:], math.Float32bits(sample))
	}
	return json.Marshal(wireRequest{Samples: pcm, SampleRate: r.SampleRate})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	var wire wireRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Samples)%4 != 0 {
		return fmt.Errorf("samples: %d bytes is not a whole number of float32 values", len(wire.Samples))
	}
	samples := make([]float32, len(wire.Samples)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(wire.Samples[4*i:]))
	}
	r.Samples = samples
	r.SampleRate = wire.SampleRate
	return nil
}

// encodedSampleCount returns how many samples a base64 samples field holds
// without decoding it.
func encodedSampleCount(encoded string) int {
	n := len(encoded)
	if n == 0 {
		return 0
	}
	pad := 0
	for i := n - 1; i >= 0 && i >= n-2 && encoded[i] == '='; i-- {
		pad++
	}
	return (n/4*3 - pad) / 4
}

// Duration returns the audio length.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(r.Samples)) / float64(r.SampleRate) * float64(time.Second))
}

// Options are the run options.
type Options struct {
	Language           string  `json:"language,omitempty"`
	Task               string  `json:"task,omitempty"`
	ReturnTimestamps   bool    `json:"return_timestamps"`
	ChunkLengthSeconds float64 `json:"chunk_length_s,omitempty"`
}

// Task values.
const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// Chunk is one timed span of recognized text, in seconds.
type Chunk struct {
	Text      string     `json:"text"`
	Timestamp [2]float64 `json:"timestamp"`
}

// Transcript is the run result.
type Transcript struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks"`
}

// Segments converts the transcript into numbered subtitle segments, dropping
// chunks without text.
func (t Transcript) Segments() []subtitles.Segment {
	cues := make([]subtitles.Cue, 0, len(t.Chunks))
	for _, chunk := range t.Chunks {
		cues = append(cues, subtitles.Cue{Start: chunk.Timestamp[0], End: chunk.Timestamp[1], Text: chunk.Text})
	}
	return subtitles.FromCues(cues)
}

// SRT renders the transcript as an SRT document.
func (t Transcript) SRT() string {
	return subtitles.Format(t.Segments())
}

func joinTexts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}
