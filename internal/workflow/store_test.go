package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vidsub/internal/media"
	"vidsub/internal/statestore"
	"vidsub/internal/subtitles"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, opts ...Option) (*Store, *statestore.Memory) {
	t.Helper()
	slot := statestore.NewMemory()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(slot, opts...), slot
}

func stored(t *testing.T, slot *statestore.Memory) map[string]any {
	t.Helper()
	data, ok, err := slot.Get(context.Background(), DefaultKey)
	if err != nil || !ok {
		t.Fatalf("snapshot missing: ok=%v err=%v", ok, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	return doc
}

type failingSlot struct{ err error }

func (f failingSlot) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failingSlot) Put(context.Context, string, []byte) error         { return f.err }
func (f failingSlot) Delete(context.Context, string) error              { return f.err }

func TestDefaultState(t *testing.T) {
	s, _ := newStore(t)
	state := s.State()
	if state.CurrentStep != StepExtract || len(state.CompletedSteps) != 0 || state.IsProcessing {
		t.Fatalf("unexpected default state %+v", state)
	}
	if diff := cmp.Diff(DefaultArtifacts(), state.Artifacts); diff != "" {
		t.Fatalf("default artifacts mismatch (-want +got):\n%s", diff)
	}
	if state.LastPersistedAt != nil {
		t.Fatal("fresh store should not report a save")
	}
}

func TestCompleteStepKeepsSortedUniqueSet(t *testing.T) {
	s, slot := newStore(t)
	for _, step := range []Step{StepTranslate, StepExtract, StepTranslate, StepTranscribe, Step(9), StepExtract} {
		s.CompleteStep(step)
	}
	want := []Step{StepExtract, StepTranscribe, StepTranslate}
	if diff := cmp.Diff(want, s.CompletedSteps()); diff != "" {
		t.Fatalf("completed steps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{1.0, 2.0, 3.0}, stored(t, slot)["completedSteps"]); diff != "" {
		t.Fatalf("persisted steps mismatch (-want +got):\n%s", diff)
	}
	if got := s.StepProgress(); got != 75 {
		t.Fatalf("StepProgress = %v, want 75", got)
	}
}

func TestProceedToNextAfterExtraction(t *testing.T) {
	s, _ := newStore(t)
	if _, ok := s.ProceedToNext(); ok {
		t.Fatal("proceeding without video and audio should fail")
	}
	s.UpdateArtifacts(SetVideoFile(&FileRef{Path: "/videos/talk.mp4"}), SetExtractedAudio([]byte{1, 2, 3}))
	if !s.CanProceedToNext() {
		t.Fatal("CanProceedToNext should hold after extraction")
	}
	next, ok := s.ProceedToNext()
	if !ok || next != StepTranscribe {
		t.Fatalf("ProceedToNext = %v, %v", next, ok)
	}
	state := s.State()
	if state.CurrentStep != StepTranscribe {
		t.Fatalf("current step = %v", state.CurrentStep)
	}
	if diff := cmp.Diff([]Step{StepExtract}, state.CompletedSteps); diff != "" {
		t.Fatalf("completed mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyTranscriptionDoesNotSatisfyStep(t *testing.T) {
	s, _ := newStore(t)
	s.UpdateArtifacts(SetTranscriptionSRT(""))
	if StepSatisfied(StepTranscribe, s.Artifacts()) {
		t.Fatal("empty transcription must not satisfy the transcribe step")
	}
	s.SetCurrentStep(StepTranscribe)
	if s.CanProceedToNext() {
		t.Fatal("CanProceedToNext with empty transcription")
	}
}

func TestProceedHasNoSuccessorFromDevOrLastStep(t *testing.T) {
	s, _ := newStore(t)
	if !s.JumpToStep(StepDev) {
		t.Fatal("dev step should be accessible")
	}
	if _, ok := s.ProceedToNext(); ok {
		t.Fatal("dev step has no successor")
	}
	s.JumpToStep(StepMerge)
	if _, ok := s.ProceedToNext(); ok {
		t.Fatal("merge step has no successor")
	}
	if _, ok := s.NextStep(); ok {
		t.Fatal("NextStep from merge should be empty")
	}
}

func TestBinaryArtifactsStayInMemory(t *testing.T) {
	s, slot := newStore(t)
	video := &FileRef{Path: "/videos/talk.mp4", Name: "talk.mp4", Size: 42}
	s.UpdateArtifacts(
		SetVideoFile(video),
		SetExtractedAudio([]byte("RIFF")),
		SetFinalVideo([]byte("mp4")),
		SetTranscriptionSRT("1\n00:00:00,000 --> 00:00:01,000\nhi\n"),
		SetSelectedWhisperModel("whisper-small"),
	)
	doc := stored(t, slot)
	artifacts := doc["artifacts"].(map[string]any)
	for _, key := range []string{"videoFile", "extractedAudio", "audioFile", "finalVideo"} {
		value, present := artifacts[key]
		if !present || value != nil {
			t.Errorf("binary key %q should be present and null, got %v (present=%v)", key, value, present)
		}
	}
	if artifacts["selectedWhisperModel"] != "whisper-small" {
		t.Fatalf("plain artifact not persisted: %v", artifacts["selectedWhisperModel"])
	}
	if doc["lastSaved"] != fixedNow.Format(time.RFC3339) {
		t.Fatalf("lastSaved = %v", doc["lastSaved"])
	}

	view := s.Artifacts()
	if view.VideoFile == nil || view.VideoFile.Name != "talk.mp4" || string(view.ExtractedAudio) != "RIFF" {
		t.Fatalf("binary artifacts missing from the view: %+v", view)
	}
	if !s.HasVideoArtifacts() || !s.HasAudioArtifacts() || !s.HasTranscriptionArtifacts() || s.HasTranslationArtifacts() {
		t.Fatal("artifact presence queries disagree with the view")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, slot := newStore(t)
	style := media.DefaultSubtitleStyle()
	style.FontSize = 32
	segments := subtitles.Parse("1\n00:00:01,000 --> 00:00:02,500\nHola\n")
	err := s.UpdateArtifacts(
		SetVideoFile(&FileRef{Path: "/v.mp4"}),
		SetAudioFormat(media.AudioMP3),
		SetTranscriptionSRT("1\n00:00:01,000 --> 00:00:02,500\nHello\n"),
		SetTranslatedSRT("1\n00:00:01,000 --> 00:00:02,500\nHola\n"),
		SetTranslationSegments(segments),
		SetSourceLanguage("en"),
		SetTargetLanguage("fr"),
		SetSelectedTranslationModel("opus-mt-en-fr"),
		SetSubtitleStyle(&style),
		SetOutputFormat(media.OutputWebM),
	)
	if err != nil {
		t.Fatalf("UpdateArtifacts: %v", err)
	}
	s.CompleteStep(StepExtract)
	s.JumpToStep(StepTranslate)
	before := s.State()

	s.Load(context.Background())
	after := s.State()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("round trip mismatch (-before +after):\n%s", diff)
	}

	fresh := Open(context.Background(), slot)
	got := fresh.State()
	if got.Artifacts.VideoFile != nil {
		t.Fatal("binary artifacts must not survive a new process")
	}
	if diff := cmp.Diff(before.Artifacts.plain(), got.Artifacts); diff != "" {
		t.Fatalf("restored plain artifacts mismatch (-want +got):\n%s", diff)
	}
	if got.CurrentStep != StepTranslate {
		t.Fatalf("restored step = %v", got.CurrentStep)
	}
}

func TestUpdateArtifactsRejectsValuesLoadWouldRewrite(t *testing.T) {
	badStyle := media.DefaultSubtitleStyle()
	badStyle.Alignment = "justify"
	tests := []struct {
		name   string
		update ArtifactUpdate
	}{
		{"audio format", SetAudioFormat("flac")},
		{"output format", SetOutputFormat("avi")},
		{"empty target language", SetTargetLanguage("")},
		{"padded source language", SetSourceLanguage(" fr ")},
		{"unparseable language", SetTargetLanguage("not a language")},
		{"subtitle style", SetSubtitleStyle(&badStyle)},
		{"zero value", ArtifactUpdate{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, slot := newStore(t)
			if err := s.UpdateArtifacts(SetTargetLanguage("de")); err != nil {
				t.Fatalf("valid update rejected: %v", err)
			}
			before := s.State()

			err := s.UpdateArtifacts(SetTranscriptionSRT("dropped with the batch"), tt.update)
			if !errors.Is(err, ErrInvalidArtifact) {
				t.Fatalf("UpdateArtifacts error = %v, want ErrInvalidArtifact", err)
			}
			if diff := cmp.Diff(before, s.State()); diff != "" {
				t.Fatalf("rejected batch changed state (-before +after):\n%s", diff)
			}

			reopened := Open(context.Background(), slot)
			if diff := cmp.Diff(before.Artifacts.plain(), reopened.State().Artifacts); diff != "" {
				t.Fatalf("restored artifacts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubtitleStyleResetIsAccepted(t *testing.T) {
	s, _ := newStore(t)
	style := media.DefaultSubtitleStyle()
	style.FontSize = 40
	if err := s.UpdateArtifacts(SetSubtitleStyle(&style)); err != nil {
		t.Fatalf("set style: %v", err)
	}
	if err := s.UpdateArtifacts(SetSubtitleStyle(nil)); err != nil {
		t.Fatalf("reset style: %v", err)
	}
	if s.Artifacts().SubtitleStyle != nil {
		t.Fatal("style not reset")
	}
}

func TestResetThenLoadFromClearedSlot(t *testing.T) {
	s, slot := newStore(t)
	s.UpdateArtifacts(SetTranscriptionSRT("x"), SetExtractedAudio([]byte{1}))
	s.CompleteStep(StepExtract)
	s.SetProcessing(true)
	s.ResetWorkflow()
	s.Clear(context.Background())
	if _, ok, _ := slot.Get(context.Background(), DefaultKey); ok {
		t.Fatal("Clear should remove the snapshot")
	}
	s.Load(context.Background())

	state := s.State()
	if diff := cmp.Diff(DefaultArtifacts(), state.Artifacts); diff != "" {
		t.Fatalf("artifacts after reset mismatch (-want +got):\n%s", diff)
	}
	if state.CurrentStep != FirstStep || len(state.CompletedSteps) != 0 || state.IsProcessing {
		t.Fatalf("state after reset = %+v", state)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		step      Step
		completed []Step
		check     func(t *testing.T, a Artifacts)
	}{
		{
			name: "explicit dev step is honoured",
			doc:  `{"currentStep":0}`,
			step: StepDev,
		},
		{
			name:      "out of range values are dropped",
			doc:       `{"currentStep":9,"completedSteps":[3,7,1,3,-1]}`,
			step:      StepExtract,
			completed: []Step{StepExtract, StepTranslate},
		},
		{
			name: "invalid enums and languages fall back",
			doc:  `{"currentStep":2,"artifacts":{"audioFormat":"flac","outputFormat":"","sourceLanguage":"","targetLanguage":"???","videoFile":{"path":"/smuggled"}}}`,
			step: StepTranscribe,
			check: func(t *testing.T, a Artifacts) {
				want := DefaultArtifacts()
				if diff := cmp.Diff(want, a); diff != "" {
					t.Fatalf("artifacts mismatch (-want +got):\n%s", diff)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			slot := statestore.NewMemory()
			_ = slot.Put(context.Background(), DefaultKey, []byte(tc.doc))
			s := Open(context.Background(), slot)
			state := s.State()
			if state.CurrentStep != tc.step {
				t.Fatalf("step = %v, want %v", state.CurrentStep, tc.step)
			}
			want := tc.completed
			if want == nil {
				want = []Step{}
			}
			if diff := cmp.Diff(want, state.CompletedSteps); diff != "" {
				t.Fatalf("completed mismatch (-want +got):\n%s", diff)
			}
			if tc.check != nil {
				tc.check(t, state.Artifacts)
			}
		})
	}
}

func TestCorruptSnapshotResets(t *testing.T) {
	s, slot := newStore(t)
	s.UpdateArtifacts(SetExtractedAudio([]byte{9}), SetTranscriptionSRT("kept?"))
	_ = slot.Put(context.Background(), DefaultKey, []byte(`{"currentStep":`))
	s.Load(context.Background())

	state := s.State()
	if diff := cmp.Diff(DefaultArtifacts(), state.Artifacts); diff != "" {
		t.Fatalf("corrupt snapshot should reset everything (-want +got):\n%s", diff)
	}
	if doc := stored(t, slot); doc["currentStep"] != 1.0 {
		t.Fatalf("reset should be persisted, got %v", doc)
	}
}

func TestContinuityOnEnteringSteps(t *testing.T) {
	s, _ := newStore(t)
	s.UpdateArtifacts(SetTranscriptionSRT("source"))
	s.JumpToStep(StepTranslate)
	if got := s.Artifacts().OriginalSRT; got != "source" {
		t.Fatalf("OriginalSRT = %q, want copy of transcription", got)
	}

	s.UpdateArtifacts(SetOriginalSRT("edited"))
	s.JumpToStep(StepTranslate)
	if got := s.Artifacts().OriginalSRT; got != "edited" {
		t.Fatalf("existing OriginalSRT overwritten: %q", got)
	}

	s.UpdateArtifacts(SetTranslatedSRT("1\n00:00:00,000 --> 00:00:01,000\nhola\n"))
	s.JumpToStep(StepMerge)
	if !s.SegmentsPending() {
		t.Fatal("segments should be pending after entering merge")
	}
	s.UpdateArtifacts(SetTranslationSegments(subtitles.Parse(s.Artifacts().TranslatedSRT)))
	if s.SegmentsPending() {
		t.Fatal("storing segments should clear the pending flag")
	}
}

func TestPermissivePolicy(t *testing.T) {
	s, _ := newStore(t)
	for _, step := range Steps() {
		if !s.CanAccessStep(step) {
			t.Errorf("permissive policy blocked %v", step)
		}
	}
	if s.CanAccessStep(Step(5)) || s.CanAccessStep(Step(-1)) {
		t.Fatal("out of range steps must not be accessible")
	}
	if s.JumpToStep(Step(5)) {
		t.Fatal("JumpToStep accepted an invalid step")
	}
}

func TestGatedPolicy(t *testing.T) {
	s, _ := newStore(t, WithPolicy(PolicyGated))
	if !s.CanAccessStep(StepDev) || !s.CanAccessStep(StepExtract) {
		t.Fatal("dev and first steps are always accessible")
	}
	if s.CanAccessStep(StepTranscribe) {
		t.Fatal("transcribe should need extraction")
	}
	s.SetCurrentStep(StepMerge)
	if s.CurrentStep() != StepExtract {
		t.Fatal("SetCurrentStep should be a no-op for an inaccessible step")
	}

	s.UpdateArtifacts(SetTranscriptionSRT("text"))
	if !s.CanAccessStep(StepTranslate) {
		t.Fatal("translate should open once transcription exists")
	}
	s.CompleteStep(StepTranslate)
	if !s.CanAccessStep(StepMerge) {
		t.Fatal("merge should open once translate is complete")
	}
	if s.CanAccessStep(StepTranscribe) {
		t.Fatal("transcribe still needs extraction")
	}
}

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	s := New(failingSlot{err: errors.New("disk full")})
	s.UpdateArtifacts(SetTranscriptionSRT("still works"))
	s.Load(context.Background())
	s.Clear(context.Background())
	state := s.State()
	if state.Artifacts.TranscriptionSRT != "still works" {
		t.Fatal("failed persistence should not lose in-memory state")
	}
	if state.LastPersistedAt != nil {
		t.Fatal("LastPersistedAt set despite failed save")
	}
}

func TestTryBeginProcessingAdmitsOneCaller(t *testing.T) {
	s, slot := newStore(t)
	const callers = 16
	var wg sync.WaitGroup
	var won atomic.Int32
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBeginProcessing() {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := won.Load(); got != 1 {
		t.Fatalf("callers admitted = %d, want 1", got)
	}
	if _, ok, _ := slot.Get(context.Background(), DefaultKey); !ok {
		t.Fatal("TryBeginProcessing should persist")
	}
	s.SetProcessing(false)
	if !s.TryBeginProcessing() {
		t.Fatal("flag should be free after SetProcessing(false)")
	}
}

func TestSetProcessingPersists(t *testing.T) {
	s, slot := newStore(t)
	s.SetProcessing(true)
	if !s.IsProcessing() {
		t.Fatal("busy flag not set")
	}
	if _, ok, _ := slot.Get(context.Background(), DefaultKey); !ok {
		t.Fatal("SetProcessing should persist")
	}
	if at := s.State().LastPersistedAt; at == nil || !at.Equal(fixedNow) {
		t.Fatalf("LastPersistedAt = %v", at)
	}
}

func TestParseStepAndPolicy(t *testing.T) {
	if s, err := ParseStep("3"); err != nil || s != StepTranslate {
		t.Fatalf("ParseStep(3) = %v, %v", s, err)
	}
	if s, err := ParseStep("merge"); err != nil || s != StepMerge {
		t.Fatalf("ParseStep(merge) = %v, %v", s, err)
	}
	if _, err := ParseStep("7"); err == nil {
		t.Fatal("ParseStep(7) should fail")
	}
	if p, err := ParsePolicy("Gated"); err != nil || p != PolicyGated {
		t.Fatalf("ParsePolicy = %v, %v", p, err)
	}
	if _, err := ParsePolicy("strict"); err == nil {
		t.Fatal("unknown policy accepted")
	}
	if FieldVideoFile.String() != "videoFile" || !FieldFinalVideo.Binary() || FieldAudioFormat.Binary() {
		t.Fatal("field metadata is wrong")
	}
}
