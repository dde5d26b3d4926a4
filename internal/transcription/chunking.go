package transcription

import "math"

// Adaptive chunk lengths, in seconds, by total audio duration.
const (
	shortAudioLimit  = 10 * 60
	mediumAudioLimit = 30 * 60

	shortChunkSeconds  = 30
	mediumChunkSeconds = 20
	longChunkSeconds   = 15
)

// ChunkLength returns the chunk length for audio of totalSeconds: the smaller
// of requested and the duration-adaptive default. A non-positive request uses
// the default.
func ChunkLength(requested, totalSeconds float64) float64 {
	adaptive := float64(longChunkSeconds)
	switch {
	case totalSeconds <= shortAudioLimit:
		adaptive = shortChunkSeconds
	case totalSeconds <= mediumAudioLimit:
		adaptive = mediumChunkSeconds
	}
	if requested <= 0 {
		return adaptive
	}
	return math.Min(requested, adaptive)
}

// Span is a half-open sample range [Start, End) of chunk Index.
type Span struct {
	Index int
	Start int
	End   int
}

// PlanChunks splits sampleCount samples into consecutive spans of
// chunkSeconds. The last span may be shorter.
func PlanChunks(sampleCount, sampleRate int, chunkSeconds float64) []Span {
	if sampleCount <= 0 || sampleRate <= 0 || chunkSeconds <= 0 {
		return nil
	}
	size := max(int(math.Round(chunkSeconds*float64(sampleRate))), 1)
	spans := make([]Span, 0, (sampleCount+size-1)/size)
	for start := 0; start < sampleCount; start += size {
		spans = append(spans, Span{Index: len(spans), Start: start, End: min(start+size, sampleCount)})
	}
	return spans
}

// Merge combines per-chunk transcripts into one. Timestamps of chunk i are
// shifted by i*chunkSeconds and clamped to that chunk's window so merged
// chunks never overlap. totalSeconds bounds the last window.
func Merge(parts []Transcript, chunkSeconds, totalSeconds float64) Transcript {
	merged := Transcript{Chunks: []Chunk{}}
	texts := make([]string, 0, len(parts))
	for i, part := range parts {
		offset := float64(i) * chunkSeconds
		windowEnd := offset + chunkSeconds
		if totalSeconds > 0 {
			windowEnd = math.Min(windowEnd, totalSeconds)
		}
		texts = append(texts, part.Text)
		for _, chunk := range normalizeChunks(part, windowEnd-offset) {
			start := clamp(offset+chunk.Timestamp[0], offset, windowEnd)
			end := clamp(offset+chunk.Timestamp[1], start, windowEnd)
			merged.Chunks = append(merged.Chunks, Chunk{Text: chunk.Text, Timestamp: [2]float64{start, end}})
		}
	}
	merged.Text = joinTexts(texts)
	return merged
}

// normalizeChunks fills in a single chunk for engines that only return text
// and repairs missing end timestamps.
func normalizeChunks(part Transcript, window float64) []Chunk {
	if len(part.Chunks) == 0 {
		if joinTexts([]string{part.Text}) == "" {
			return nil
		}
		return []Chunk{{Text: part.Text, Timestamp: [2]float64{0, window}}}
	}
	chunks := make([]Chunk, len(part.Chunks))
	for i, chunk := range part.Chunks {
		chunks[i] = chunk
		if chunk.Timestamp[1] <= chunk.Timestamp[0] {
			chunks[i].Timestamp[1] = window
		}
	}
	return chunks
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
