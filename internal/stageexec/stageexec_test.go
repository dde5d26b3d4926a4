package stageexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"vidsub/internal/inference"
	"vidsub/internal/media"
	"vidsub/internal/services"
	"vidsub/internal/statestore"
	"vidsub/internal/subtitles"
	"vidsub/internal/transcription"
	"vidsub/internal/translation"
	"vidsub/internal/workerproto"
	"vidsub/internal/workflow"
)

type fakeMedia struct {
	mu         sync.Mutex
	extractErr error
	mergedSRT  string
	mergeStyle media.SubtitleStyle
}

func (f *fakeMedia) ExtractAudio(_ context.Context, _ string, _ media.AudioFormat, onProgress func(float64)) ([]byte, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	onProgress(50)
	onProgress(100)
	return []byte("RIFFaudio"), nil
}

func (f *fakeMedia) DecodeSpeech(context.Context, []byte) ([]float32, error) {
	return make([]float32, 16000), nil
}

func (f *fakeMedia) MergeSubtitles(_ context.Context, _ string, srt string, style media.SubtitleStyle, _ media.OutputFormat, onProgress func(float64)) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergedSRT = srt
	f.mergeStyle = style
	onProgress(100)
	return []byte("final-video"), nil
}

func (f *fakeMedia) Metadata(context.Context, string) (media.Metadata, error) {
	return media.Metadata{Duration: 1}, nil
}

type fakeTranscriber struct {
	models []string
	opts   transcription.Options
	err    error
}

func (f *fakeTranscriber) InitializeModel(_ context.Context, id string, onProgress func(inference.ModelProgress)) (string, error) {
	f.models = append(f.models, id)
	onProgress(inference.ModelProgress{Overall: 100})
	return id, nil
}

func (f *fakeTranscriber) RunInference(_ context.Context, _ transcription.Request, opts transcription.Options, hooks inference.RunHooks) (transcription.Transcript, error) {
	f.opts = opts
	if f.err != nil {
		return transcription.Transcript{}, f.err
	}
	hooks.OnProgress(50)
	hooks.OnChunkProgress(workerproto.ChunkInfo{CurrentChunk: 1, TotalChunks: 1})
	return transcription.Transcript{
		Text: "Hello there. General Kenobi.",
		Chunks: []transcription.Chunk{
			{Text: "Hello there.", Timestamp: [2]float64{0, 1.5}},
			{Text: "General Kenobi.", Timestamp: [2]float64{2, 3.25}},
		},
	}, nil
}

type fakeTranslationClient struct {
	texts  []string
	opts   translation.Options
	failed []int
}

func (f *fakeTranslationClient) InitializeModel(_ context.Context, id string, onProgress func(inference.ModelProgress)) (string, error) {
	onProgress(inference.ModelProgress{Overall: 100})
	return id, nil
}

func (f *fakeTranslationClient) RunInference(_ context.Context, payload translation.Request, opts translation.Options, _ inference.RunHooks) (translation.Result, error) {
	f.texts = payload.Texts
	f.opts = opts
	out := make([]string, len(payload.Texts))
	for i, text := range payload.Texts {
		out[i] = "ES " + translation.StripPrefix(text)
	}
	return translation.Result{
		OriginalTexts:   payload.Texts,
		TranslatedTexts: out,
		ModelUsed:       "Xenova/opus-mt-en-es",
		FailedBatches:   f.failed,
	}, nil
}

func newStore(t *testing.T) *workflow.Store {
	t.Helper()
	return workflow.New(statestore.NewMemory())
}

func withVideo(t *testing.T, store *workflow.Store) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	store.UpdateArtifacts(workflow.SetVideoFile(&workflow.FileRef{Path: path, Name: "movie.mp4", Size: 5}))
	return path
}

func TestRunThroughFullPipeline(t *testing.T) {
	store := newStore(t)
	video := withVideo(t, store)
	outDir := t.TempDir()
	mediaFake := &fakeMedia{}
	transcriber := &fakeTranscriber{}
	translator := &fakeTranslationClient{}

	runner := NewRunner(store, nil,
		ExtractAudio{Media: mediaFake},
		Transcribe{Media: mediaFake, Client: transcriber, Model: "Xenova/whisper-tiny"},
		Translate{Client: translator, Model: "Xenova/opus-mt-en-es"},
		Merge{Media: mediaFake, OutputDir: outDir},
	)
	var seen []workflow.Step
	runner.OnProgress(func(step workflow.Step, _ float64, _ string) {
		if len(seen) == 0 || seen[len(seen)-1] != step {
			seen = append(seen, step)
		}
	})

	if err := runner.RunThrough(context.Background(), workflow.LastStep); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}

	if diff := cmp.Diff([]workflow.Step{workflow.StepExtract, workflow.StepTranscribe, workflow.StepTranslate, workflow.StepMerge}, seen); diff != "" {
		t.Fatalf("progress steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]workflow.Step{1, 2, 3, 4}, store.CompletedSteps()); diff != "" {
		t.Fatalf("completed mismatch (-want +got):\n%s", diff)
	}
	if store.IsProcessing() {
		t.Fatal("expected processing flag cleared")
	}

	artifacts := store.Artifacts()
	if artifacts.SelectedWhisperModel != "Xenova/whisper-tiny" {
		t.Fatalf("whisper model = %q", artifacts.SelectedWhisperModel)
	}
	if !transcriber.opts.ReturnTimestamps || transcriber.opts.Language != "en" {
		t.Fatalf("unexpected transcription options %+v", transcriber.opts)
	}
	if diff := cmp.Diff([]string{"Hello there.", "General Kenobi."}, translator.texts); diff != "" {
		t.Fatalf("translation input mismatch (-want +got):\n%s", diff)
	}
	if translator.opts.TargetLanguage != "es" {
		t.Fatalf("target language = %q", translator.opts.TargetLanguage)
	}
	if artifacts.OriginalSRT != artifacts.TranscriptionSRT {
		t.Fatal("expected original subtitles carried over from transcription")
	}
	if !strings.Contains(artifacts.TranslatedSRT, "ES General Kenobi.") {
		t.Fatalf("translated srt missing text:\n%s", artifacts.TranslatedSRT)
	}
	if !strings.Contains(mediaFake.mergedSRT, "00:00:02,000 --> 00:00:03,250") {
		t.Fatalf("merge srt lost timings:\n%s", mediaFake.mergedSRT)
	}
	if mediaFake.mergeStyle != media.DefaultSubtitleStyle() {
		t.Fatalf("expected default subtitle style, got %+v", mediaFake.mergeStyle)
	}

	dest := OutputPath(video, outDir, "es", media.OutputMP4)
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "final-video" {
		t.Fatalf("output = %q", data)
	}
}

func TestTranslateUsesLanguagePrefixForMultilingualModel(t *testing.T) {
	store := newStore(t)
	store.UpdateArtifacts(
		workflow.SetOriginalSRT("1\n00:00:00,000 --> 00:00:01,000\nHi\n"),
		workflow.SetTargetLanguage("pt"),
	)
	client := &fakeTranslationClient{failed: []int{0}}
	action := Translate{Client: client, Model: "Xenova/opus-mt-en-mul"}
	runner := NewRunner(store, nil, action)

	if err := runner.Run(context.Background(), workflow.StepTranslate); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{">>por<< Hi"}, client.texts); diff != "" {
		t.Fatalf("prefixed input mismatch (-want +got):\n%s", diff)
	}
	segments := store.Artifacts().TranslationSegments
	if len(segments) != 1 || segments[0].Text != "ES Hi" {
		t.Fatalf("unexpected segments %+v", segments)
	}
}

func TestRunFailureLeavesStepIncomplete(t *testing.T) {
	store := newStore(t)
	runner := NewRunner(store, nil, ExtractAudio{Media: &fakeMedia{}})

	err := runner.Run(context.Background(), workflow.StepExtract)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.CompletedSteps()) != 0 {
		t.Fatalf("expected no completed steps, got %v", store.CompletedSteps())
	}
	if store.IsProcessing() {
		t.Fatal("expected processing flag cleared after failure")
	}
}

func TestRunClassifiesInferenceCancellation(t *testing.T) {
	store := newStore(t)
	store.UpdateArtifacts(workflow.SetExtractedAudio([]byte("audio")))
	runner := NewRunner(store, nil, Transcribe{
		Media:  &fakeMedia{},
		Client: &fakeTranscriber{err: inference.ErrCancelled},
		Model:  "Xenova/whisper-base",
	})

	err := runner.Run(context.Background(), workflow.StepTranscribe)
	if services.Classify(err) != services.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %v (%v)", services.Classify(err), err)
	}
}

func TestRunRejectsConcurrentStep(t *testing.T) {
	store := newStore(t)
	store.SetProcessing(true)
	runner := NewRunner(store, nil, ExtractAudio{Media: &fakeMedia{}})
	if err := runner.Run(context.Background(), workflow.StepExtract); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRunWithoutAction(t *testing.T) {
	runner := NewRunner(newStore(t), nil)
	if runner.Has(workflow.StepMerge) {
		t.Fatal("expected no merge action")
	}
	if err := runner.Run(context.Background(), workflow.StepMerge); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunThroughStopsAtFailedStep(t *testing.T) {
	store := newStore(t)
	withVideo(t, store)
	runner := NewRunner(store, nil,
		ExtractAudio{Media: &fakeMedia{extractErr: errors.New("boom")}},
	)
	err := runner.RunThrough(context.Background(), workflow.LastStep)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if store.CurrentStep() != workflow.StepExtract {
		t.Fatalf("current step = %v", store.CurrentStep())
	}
}

func TestMergeDerivesPendingSegments(t *testing.T) {
	store := newStore(t)
	withVideo(t, store)
	srt := subtitles.Format([]subtitles.Segment{{Index: 1, StartTime: "00:00:00,000", EndTime: "00:00:01,000", Text: "Hola"}})
	store.UpdateArtifacts(workflow.SetTranslatedSRT(srt))
	if !store.JumpToStep(workflow.StepMerge) {
		t.Fatal("expected jump to merge")
	}
	if !store.SegmentsPending() {
		t.Fatal("expected segments pending after entering merge")
	}

	mediaFake := &fakeMedia{}
	runner := NewRunner(store, nil, Merge{Media: mediaFake, OutputDir: t.TempDir()})
	if err := runner.Run(context.Background(), workflow.StepMerge); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.SegmentsPending() {
		t.Fatal("expected pending cleared")
	}
	if got := store.Artifacts().TranslationSegments; len(got) != 1 || got[0].Text != "Hola" {
		t.Fatalf("unexpected segments %+v", got)
	}
	if len(store.Artifacts().FinalVideo) == 0 {
		t.Fatal("expected final video held in memory")
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("/videos/clip.final.mov", "", "de", media.OutputWebM)
	if got != filepath.Join("/videos", "clip.final.de.webm") {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestHealthListsActionsInStepOrder(t *testing.T) {
	runner := NewRunner(newStore(t), nil,
		Merge{Media: &fakeMedia{}},
		ExtractAudio{Media: &fakeMedia{}},
	)
	got := runner.Health(context.Background())
	want := []Health{Healthy("extract"), Healthy("merge")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectNeverCompletesDevStep(t *testing.T) {
	store := newStore(t)
	withVideo(t, store)
	store.JumpToStep(workflow.StepDev)
	var detail string
	runner := NewRunner(store, nil, Inspect{Media: &fakeMedia{}})
	runner.OnProgress(func(_ workflow.Step, _ float64, d string) { detail = d })

	if err := runner.Run(context.Background(), workflow.StepDev); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.CompletedSteps()) != 0 {
		t.Fatalf("expected dev step left incomplete, got %v", store.CompletedSteps())
	}
	if detail != "0x0, 1.0s" {
		t.Fatalf("detail = %q", detail)
	}
}

func TestRunThroughContinuesFromDevStep(t *testing.T) {
	store := newStore(t)
	withVideo(t, store)
	store.JumpToStep(workflow.StepDev)
	mediaFake := &fakeMedia{}
	runner := NewRunner(store, nil,
		Inspect{Media: mediaFake},
		ExtractAudio{Media: mediaFake},
		Transcribe{Media: mediaFake, Client: &fakeTranscriber{}, Model: "Xenova/whisper-tiny"},
	)
	var seen []workflow.Step
	runner.OnProgress(func(step workflow.Step, _ float64, _ string) {
		if len(seen) == 0 || seen[len(seen)-1] != step {
			seen = append(seen, step)
		}
	})

	if err := runner.RunThrough(context.Background(), workflow.StepTranscribe); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	if diff := cmp.Diff([]workflow.Step{workflow.StepDev, workflow.StepExtract, workflow.StepTranscribe}, seen); diff != "" {
		t.Fatalf("progress steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]workflow.Step{workflow.StepExtract, workflow.StepTranscribe}, store.CompletedSteps()); diff != "" {
		t.Fatalf("completed mismatch (-want +got):\n%s", diff)
	}
	if store.CurrentStep() != workflow.StepTranscribe {
		t.Fatalf("current step = %v", store.CurrentStep())
	}
}

func TestRunThroughStopsAfterDevStep(t *testing.T) {
	store := newStore(t)
	withVideo(t, store)
	store.JumpToStep(workflow.StepDev)
	mediaFake := &fakeMedia{}
	runner := NewRunner(store, nil, Inspect{Media: mediaFake}, ExtractAudio{Media: mediaFake})

	if err := runner.RunThrough(context.Background(), workflow.StepDev); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	if store.CurrentStep() != workflow.StepDev || len(store.CompletedSteps()) != 0 {
		t.Fatalf("state after dev = %v %v", store.CurrentStep(), store.CompletedSteps())
	}
}

func TestRunBusyCheckIsAtomic(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newStore(t)
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	runner := NewRunner(store, nil, blockingAction{started: started, release: release})

	const callers = 8
	errs := make(chan error, callers)
	for range callers {
		go func() { errs <- runner.Run(context.Background(), workflow.StepExtract) }()
	}
	<-started
	busy := 0
	for range callers - 1 {
		if err := <-errs; errors.Is(err, ErrBusy) {
			busy++
		}
	}
	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("winning run: %v", err)
	}
	if busy != callers-1 {
		t.Fatalf("busy rejections = %d, want %d", busy, callers-1)
	}
	if len(started) != 0 {
		t.Fatal("action executed more than once")
	}
	if store.IsProcessing() {
		t.Fatal("expected processing flag cleared")
	}
}

type blockingAction struct {
	started chan<- struct{}
	release <-chan struct{}
}

func (blockingAction) Step() workflow.Step { return workflow.StepExtract }

func (a blockingAction) Execute(context.Context, Env) error {
	a.started <- struct{}{}
	<-a.release
	return nil
}
