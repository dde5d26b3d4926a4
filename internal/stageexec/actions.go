package stageexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"vidsub/internal/inference"
	"vidsub/internal/logging"
	"vidsub/internal/media"
	"vidsub/internal/services"
	"vidsub/internal/subtitles"
	"vidsub/internal/transcription"
	"vidsub/internal/translation"
	"vidsub/internal/workerproto"
	"vidsub/internal/workflow"
)

const speechSampleRate = 16000

// Transcriber is the transcription inference client.
type Transcriber interface {
	InitializeModel(ctx context.Context, modelID string, onProgress func(inference.ModelProgress)) (string, error)
	RunInference(ctx context.Context, payload transcription.Request, options transcription.Options, hooks inference.RunHooks) (transcription.Transcript, error)
}

// Translator is the translation inference client.
type Translator interface {
	InitializeModel(ctx context.Context, modelID string, onProgress func(inference.ModelProgress)) (string, error)
	RunInference(ctx context.Context, payload translation.Request, options translation.Options, hooks inference.RunHooks) (translation.Result, error)
}

// Inspect reports container metadata for the source video. It backs the dev
// step and changes no artifacts.
type Inspect struct {
	Media media.Transcoder
}

func (Inspect) Step() workflow.Step { return workflow.StepDev }

func (a Inspect) Execute(ctx context.Context, env Env) error {
	artifacts := env.Store.Artifacts()
	if artifacts.VideoFile == nil {
		return services.Wrap(services.ErrValidation, "dev", "check input", "no source video; import one first", nil)
	}
	meta, err := a.Media.Metadata(ctx, artifacts.VideoFile.Path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "dev", "ffprobe", "metadata lookup failed", err)
	}
	env.Logger.Info("video inspected",
		logging.String("video", artifacts.VideoFile.Name),
		logging.Float64("duration_seconds", meta.Duration),
		logging.Int("width", meta.Width),
		logging.Int("height", meta.Height),
		logging.Float64("fps", meta.FPS),
		logging.String("format", meta.Format),
	)
	env.Report(100, fmt.Sprintf("%dx%d, %.1fs", meta.Width, meta.Height, meta.Duration))
	return nil
}

// ExtractAudio pulls the audio track out of the source video.
type ExtractAudio struct {
	Media media.Transcoder
}

func (ExtractAudio) Step() workflow.Step { return workflow.StepExtract }

func (a ExtractAudio) Execute(ctx context.Context, env Env) error {
	artifacts := env.Store.Artifacts()
	if artifacts.VideoFile == nil {
		return services.Wrap(services.ErrValidation, "extract", "check input", "no source video; import one first", nil)
	}
	audio, err := a.Media.ExtractAudio(ctx, artifacts.VideoFile.Path, artifacts.AudioFormat, func(p float64) {
		env.Report(p, "extracting audio")
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", "audio extraction failed", err)
	}
	if err := env.Store.UpdateArtifacts(workflow.SetExtractedAudio(audio)); err != nil {
		return services.Wrap(services.ErrValidation, "extract", "store", "artifact rejected", err)
	}
	env.Logger.Info("audio extracted",
		logging.Int("bytes", len(audio)),
		logging.String("format", string(artifacts.AudioFormat)),
	)
	return nil
}

// Transcribe turns the extracted or imported audio into subtitles.
type Transcribe struct {
	Media   media.Transcoder
	Client  Transcriber
	Model   string
	Options transcription.Options
}

func (Transcribe) Step() workflow.Step { return workflow.StepTranscribe }

func (a Transcribe) Execute(ctx context.Context, env Env) error {
	artifacts := env.Store.Artifacts()
	audio, err := speechInput(artifacts)
	if err != nil {
		return err
	}
	samples, err := a.Media.DecodeSpeech(ctx, audio)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "decode audio", "could not decode audio to PCM", err)
	}

	model := firstNonEmpty(artifacts.SelectedWhisperModel, a.Model)
	if _, err := a.Client.InitializeModel(ctx, model, modelReporter(env, "loading "+model)); err != nil {
		return inferenceError("transcribe", "initialize model", err)
	}
	opts := a.Options
	if opts.Language == "" {
		opts.Language = artifacts.SourceLanguage
	}
	opts.ReturnTimestamps = true
	transcript, err := a.Client.RunInference(ctx, transcription.Request{Samples: samples, SampleRate: speechSampleRate}, opts, runHooks(env))
	if err != nil {
		return inferenceError("transcribe", "run", err)
	}

	segments := transcript.Segments()
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "transcribe", "result", "no speech recognised", nil)
	}
	if err := env.Store.UpdateArtifacts(
		workflow.SetTranscriptionSRT(subtitles.Format(segments)),
		workflow.SetTranscriptionSegments(segments),
		workflow.SetSelectedWhisperModel(model),
	); err != nil {
		return services.Wrap(services.ErrValidation, "transcribe", "store", "artifact rejected", err)
	}
	env.Logger.Info("transcription stored",
		logging.Int("segments", len(segments)),
		logging.String(logging.FieldModelID, model),
	)
	return nil
}

func speechInput(a workflow.Artifacts) ([]byte, error) {
	if len(a.ExtractedAudio) > 0 {
		return a.ExtractedAudio, nil
	}
	if a.AudioFile != nil {
		data, err := os.ReadFile(a.AudioFile.Path)
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "transcribe", "read audio", "imported audio file unreadable", err)
		}
		return data, nil
	}
	return nil, services.Wrap(services.ErrValidation, "transcribe", "check input", "no audio; extract or import audio first", nil)
}

// Translate translates the original subtitles into the target language.
type Translate struct {
	Client    Translator
	Model     string
	MaxLength int
}

func (Translate) Step() workflow.Step { return workflow.StepTranslate }

func (a Translate) Execute(ctx context.Context, env Env) error {
	artifacts := env.Store.Artifacts()
	source := firstNonEmpty(artifacts.OriginalSRT, artifacts.TranscriptionSRT)
	segments := subtitles.Parse(source)
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "translate", "check input", "no subtitles to translate", nil)
	}

	model := firstNonEmpty(artifacts.SelectedTranslationModel, a.Model)
	if _, err := a.Client.InitializeModel(ctx, model, modelReporter(env, "loading "+model)); err != nil {
		return inferenceError("translate", "initialize model", err)
	}
	texts := translation.PrefixInputs(model, artifacts.TargetLanguage, subtitles.Texts(segments))
	result, err := a.Client.RunInference(ctx, translation.Request{Texts: texts}, translation.Options{
		SourceLanguage: artifacts.SourceLanguage,
		TargetLanguage: artifacts.TargetLanguage,
		MaxLength:      a.MaxLength,
	}, runHooks(env))
	if err != nil {
		return inferenceError("translate", "run", err)
	}
	translated, err := subtitles.ApplyTexts(segments, result.TranslatedTexts)
	if err != nil {
		return services.Wrap(services.ErrValidation, "translate", "apply", "translation result does not match the subtitles", err)
	}
	if len(result.FailedBatches) > 0 {
		logging.WarnWithContext(env.Logger, "some lines left untranslated", "translation_partial",
			logging.Int("failed_batches", len(result.FailedBatches)),
			logging.String(logging.FieldImpact, "affected subtitles keep the original text"),
			logging.String(logging.FieldErrorHint, "rerun the translate step to retry"),
		)
	}

	updates := []workflow.ArtifactUpdate{
		workflow.SetTranslatedSRT(subtitles.Format(translated)),
		workflow.SetTranslationSegments(translated),
		workflow.SetSelectedTranslationModel(model),
	}
	if artifacts.OriginalSRT == "" {
		updates = append(updates, workflow.SetOriginalSRT(source))
	}
	if err := env.Store.UpdateArtifacts(updates...); err != nil {
		return services.Wrap(services.ErrValidation, "translate", "store", "artifact rejected", err)
	}
	env.Logger.Info("translation stored",
		logging.Int("segments", len(translated)),
		logging.String(logging.FieldModelID, result.ModelUsed),
	)
	return nil
}

// Merge burns the translated subtitles into the video and writes the result.
type Merge struct {
	Media media.Transcoder
	// OutputDir receives the final video. Empty means next to the source.
	OutputDir string
}

func (Merge) Step() workflow.Step { return workflow.StepMerge }

func (a Merge) Execute(ctx context.Context, env Env) error {
	if env.Store.SegmentsPending() {
		segments := subtitles.Parse(env.Store.Artifacts().TranslatedSRT)
		if err := env.Store.UpdateArtifacts(workflow.SetTranslationSegments(segments)); err != nil {
			return services.Wrap(services.ErrValidation, "merge", "store", "artifact rejected", err)
		}
		env.Logger.Debug("translation segments derived", logging.Int("segments", len(segments)))
	}
	artifacts := env.Store.Artifacts()
	if artifacts.VideoFile == nil {
		return services.Wrap(services.ErrValidation, "merge", "check input", "no source video; import one first", nil)
	}
	srt := artifacts.TranslatedSRT
	if len(artifacts.TranslationSegments) > 0 {
		srt = subtitles.Format(artifacts.TranslationSegments)
	}
	if strings.TrimSpace(srt) == "" {
		return services.Wrap(services.ErrValidation, "merge", "check input", "no translated subtitles; translate or import them first", nil)
	}
	style := media.DefaultSubtitleStyle()
	if artifacts.SubtitleStyle != nil {
		style = *artifacts.SubtitleStyle
	}

	video, err := a.Media.MergeSubtitles(ctx, artifacts.VideoFile.Path, srt, style, artifacts.OutputFormat, func(p float64) {
		env.Report(p, "burning subtitles")
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "merge", "ffmpeg", "subtitle merge failed", err)
	}
	if err := env.Store.UpdateArtifacts(workflow.SetFinalVideo(video)); err != nil {
		return services.Wrap(services.ErrValidation, "merge", "store", "artifact rejected", err)
	}

	dest := OutputPath(artifacts.VideoFile.Path, a.OutputDir, artifacts.TargetLanguage, artifacts.OutputFormat)
	if err := renameio.WriteFile(dest, video, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "merge", "write output", "cannot write final video", err)
	}
	env.Logger.Info("final video written", logging.String("output", dest), logging.Int("bytes", len(video)))
	return nil
}

// OutputPath names the final video: <dir>/<source name>.<language>.<format>.
func OutputPath(source, dir, language string, format media.OutputFormat) string {
	if dir == "" {
		dir = filepath.Dir(source)
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", base, language, format))
}

func modelReporter(env Env, detail string) func(inference.ModelProgress) {
	return func(p inference.ModelProgress) {
		env.Report(p.Overall, detail)
	}
}

func runHooks(env Env) inference.RunHooks {
	return inference.RunHooks{
		OnProgress: func(percent float64) { env.Report(percent, "") },
		OnChunkProgress: func(info workerproto.ChunkInfo) {
			env.Logger.Debug("chunk complete",
				logging.Int("chunk", info.CurrentChunk),
				logging.Int("chunks", info.TotalChunks),
			)
		},
	}
}

// inferenceError tags client errors so the runner can tell cancellations and
// configuration problems from engine failures.
func inferenceError(step, op string, err error) error {
	switch {
	case errors.Is(err, inference.ErrCancelled), errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, step, op, "cancelled", err)
	case errors.Is(err, inference.ErrWorkerUnavailable), errors.Is(err, inference.ErrClosed):
		return services.Wrap(services.ErrConfiguration, step, op, "inference worker unavailable", err)
	default:
		return services.Wrap(services.ErrExternalTool, step, op, "inference failed", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
