package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"vidsub/internal/inference"
)

type fakeRecognizer struct {
	calls    []int
	loaded   string
	released bool
	cancelAt int
	cancel   context.CancelFunc
}

func (f *fakeRecognizer) Load(_ context.Context, modelID string, report func(inference.LoadProgress)) error {
	report(inference.LoadProgress{ResourceID: modelID, Percent: 100})
	f.loaded = modelID
	return nil
}

func (f *fakeRecognizer) Transcribe(_ context.Context, samples []float32, sampleRate int, opts Options) (Transcript, error) {
	f.calls = append(f.calls, len(samples))
	if f.cancel != nil && len(f.calls) == f.cancelAt {
		f.cancel()
	}
	seconds := float64(len(samples)) / float64(sampleRate)
	text := opts.Language
	return Transcript{Text: text, Chunks: []Chunk{{Text: text, Timestamp: [2]float64{0, seconds}}}}, nil
}

func (f *fakeRecognizer) Release() { f.released = true }

func newRun(t *testing.T, req Request, opts Options) *inference.Run {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	options, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("marshal options: %v", err)
	}
	return &inference.Run{CorrelationID: "run-1", Payload: payload, Options: options}
}

func TestCapabilityRunChunksAudio(t *testing.T) {
	engine := &fakeRecognizer{}
	capability := NewCapability(engine)
	if err := capability.LoadModel(context.Background(), "whisper-base", func(inference.LoadProgress) {}); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	req := Request{Samples: make([]float32, 8000*25), SampleRate: 8000}
	out, err := capability.Run(context.Background(), newRun(t, req, Options{Language: "en", ChunkLengthSeconds: 10}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	transcript := out.(Transcript)
	if len(engine.calls) != 3 || engine.calls[2] != 8000*5 {
		t.Fatalf("unexpected chunk sizes %v", engine.calls)
	}
	if transcript.Text != "en en en" {
		t.Fatalf("unexpected text %q", transcript.Text)
	}
	last := transcript.Chunks[2].Timestamp
	if last != [2]float64{20, 25} {
		t.Fatalf("last chunk should be shifted to [20 25], got %v", last)
	}
}

func TestCapabilityRunStopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := &fakeRecognizer{cancelAt: 1, cancel: cancel}
	capability := NewCapability(engine)
	req := Request{Samples: make([]float32, 100*90), SampleRate: 100}
	_, err := capability.Run(ctx, newRun(t, req, Options{ChunkLengthSeconds: 30}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("work continued after cancellation: %d chunks", len(engine.calls))
	}
}

func TestCapabilityRunRejectsEmptyAudio(t *testing.T) {
	capability := NewCapability(&fakeRecognizer{})
	if _, err := capability.Run(context.Background(), newRun(t, Request{SampleRate: 16000}, Options{})); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestCapabilityEstimate(t *testing.T) {
	capability := NewCapability(&fakeRecognizer{})
	if err := capability.LoadModel(context.Background(), "whisper-medium", func(inference.LoadProgress) {}); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	payload, _ := json.Marshal(Request{Samples: make([]float32, 16000*20), SampleRate: 16000})
	if got := capability.Estimate(payload, nil); got != time.Minute {
		t.Fatalf("Estimate = %v, want 1m", got)
	}
	capability.Release()
	if got := capability.Estimate(payload, nil); got != 30*time.Second {
		t.Fatalf("Estimate after release = %v, want 30s", got)
	}
}

func TestEstimateAndCatalog(t *testing.T) {
	if got := Estimate("whisper-large-v3", time.Minute); got != 4*time.Minute {
		t.Fatalf("large estimate = %v", got)
	}
	if got := Estimate("whisper-base", time.Second); got != 10*time.Second {
		t.Fatalf("estimate floor = %v", got)
	}
	if _, ok := LookupModel("whisper-small"); !ok {
		t.Fatal("whisper-small should be in the catalog")
	}
	if got := EngineModel("Xenova/whisper-large-v3-turbo"); got != "large-v3-turbo" {
		t.Fatalf("EngineModel = %q", got)
	}
}

func TestRequestWireEncoding(t *testing.T) {
	req := Request{Samples: []float32{-1, -0.25, 0, 0.5, 1}, SampleRate: 16000}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !slices.Equal(got.Samples, req.Samples) || got.SampleRate != 16000 {
		t.Fatalf("round trip = %+v, want %+v", got, req)
	}

	var bad Request
	if err := json.Unmarshal([]byte(`{"samples":"AAAAAA==","sampleRate":16000}`), &bad); err != nil {
		t.Fatalf("unmarshal whole sample: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"samples":"AAA=","sampleRate":16000}`), &bad); err == nil {
		t.Fatal("expected error for a partial float32")
	}
}

func TestRequestWireSizeStaysCompact(t *testing.T) {
	const seconds = 60
	samples := make([]float32, 16000*seconds)
	for i := range samples {
		samples[i] = float32(i%2000)/1000 - 1
	}
	data, err := json.Marshal(Request{Samples: samples, SampleRate: 16000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// base64 of 4-byte samples is 16/3 bytes per sample plus a small envelope.
	if limit := len(samples)*16/3 + 64; len(data) > limit {
		t.Fatalf("one minute encodes to %d bytes, want at most %d", len(data), limit)
	}
}

func TestEncodedSampleCount(t *testing.T) {
	for n := range 6 {
		data, err := json.Marshal(Request{Samples: make([]float32, n), SampleRate: 1})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var wire struct {
			Samples string `json:"samples"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := encodedSampleCount(wire.Samples); got != n {
			t.Fatalf("encodedSampleCount(%q) = %d, want %d", wire.Samples, got, n)
		}
	}
}
