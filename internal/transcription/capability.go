package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"vidsub/internal/inference"
)

// CapabilityName labels worker error messages.
const CapabilityName = "Transcription"

const previewRunes = 80

// Recognizer is a speech-to-text engine that handles one bounded chunk of
// audio per call.
type Recognizer interface {
	Load(ctx context.Context, modelID string, report func(inference.LoadProgress)) error
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (Transcript, error)
	Release()
}

// Capability serves transcription requests inside an inference worker.
type Capability struct {
	engine Recognizer

	mu      sync.Mutex
	modelID string
}

// NewCapability wraps engine.
func NewCapability(engine Recognizer) *Capability {
	return &Capability{engine: engine}
}

func (c *Capability) Name() string { return CapabilityName }

func (c *Capability) LoadModel(ctx context.Context, modelID string, report func(inference.LoadProgress)) error {
	if err := c.engine.Load(ctx, modelID, report); err != nil {
		return err
	}
	c.mu.Lock()
	c.modelID = modelID
	c.mu.Unlock()
	return nil
}

func (c *Capability) Release() {
	c.mu.Lock()
	c.modelID = ""
	c.mu.Unlock()
	c.engine.Release()
}

// Estimate implements inference.Estimator without decoding every sample.
func (c *Capability) Estimate(payload, _ json.RawMessage) time.Duration {
	var head struct {
		Samples    string `json:"samples"`
		SampleRate int    `json:"sampleRate"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.SampleRate <= 0 {
		return 0
	}
	count := encodedSampleCount(head.Samples)
	c.mu.Lock()
	modelID := c.modelID
	c.mu.Unlock()
	audio := time.Duration(float64(count) / float64(head.SampleRate) * float64(time.Second))
	return Estimate(modelID, audio)
}

// Run transcribes the payload chunk by chunk. Cancellation is honoured
// between chunks.
func (c *Capability) Run(ctx context.Context, run *inference.Run) (any, error) {
	var req Request
	if err := json.Unmarshal(run.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	opts := Options{Language: "en", Task: TaskTranscribe, ReturnTimestamps: true}
	if len(run.Options) > 0 {
		if err := json.Unmarshal(run.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(req.Samples) == 0 {
		return nil, errors.New("no audio samples")
	}
	if req.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", req.SampleRate)
	}

	total := req.Duration().Seconds()
	chunkSeconds := ChunkLength(opts.ChunkLengthSeconds, total)
	spans := PlanChunks(len(req.Samples), req.SampleRate, chunkSeconds)
	parts := make([]Transcript, 0, len(spans))
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := c.engine.Transcribe(ctx, req.Samples[span.Start:span.End], req.SampleRate, opts)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", span.Index+1, len(spans), err)
		}
		parts = append(parts, part)
		run.Chunk(span.Index+1, len(spans), preview(part.Text))
	}
	return Merge(parts, chunkSeconds, total), nil
}

func preview(text string) string {
	text = joinTexts([]string{text})
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "..."
}
