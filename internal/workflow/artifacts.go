package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"vidsub/internal/media"
	"vidsub/internal/subtitles"
)

// FileRef points at a file the user supplied.
type FileRef struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Artifacts is the merged view of both storage tiers. The first four fields
// are binary and never persisted.
type Artifacts struct {
	VideoFile      *FileRef `json:"videoFile"`
	ExtractedAudio []byte   `json:"extractedAudio"`
	AudioFile      *FileRef `json:"audioFile"`
	FinalVideo     []byte   `json:"finalVideo"`

	AudioFormat              media.AudioFormat    `json:"audioFormat"`
	TranscriptionSRT         string               `json:"transcriptionSRT"`
	TranscriptionSegments    []subtitles.Segment  `json:"transcriptionSegments"`
	SelectedWhisperModel     string               `json:"selectedWhisperModel"`
	SelectedTranslationModel string               `json:"selectedTranslationModel"`
	OriginalSRT              string               `json:"originalSRT"`
	TranslatedSRT            string               `json:"translatedSRT"`
	SourceLanguage           string               `json:"sourceLanguage"`
	TargetLanguage           string               `json:"targetLanguage"`
	TranslationSegments      []subtitles.Segment  `json:"translationSegments"`
	SubtitleStyle            *media.SubtitleStyle `json:"subtitleStyle"`
	OutputFormat             media.OutputFormat   `json:"outputFormat"`
}

const (
	defaultSourceLanguage = "en"
	defaultTargetLanguage = "es"
)

// DefaultArtifacts returns the artifacts of a fresh workflow.
func DefaultArtifacts() Artifacts {
	return Artifacts{
		AudioFormat:    media.AudioWAV,
		SourceLanguage: defaultSourceLanguage,
		TargetLanguage: defaultTargetLanguage,
		OutputFormat:   media.OutputMP4,
	}
}

// plain returns a with the binary tier cleared.
func (a Artifacts) plain() Artifacts {
	a.VideoFile = nil
	a.ExtractedAudio = nil
	a.AudioFile = nil
	a.FinalVideo = nil
	return a
}

// withBinary overlays the binary fields of b onto a.
func (a Artifacts) withBinary(b Artifacts) Artifacts {
	a.VideoFile = b.VideoFile
	a.ExtractedAudio = b.ExtractedAudio
	a.AudioFile = b.AudioFile
	a.FinalVideo = b.FinalVideo
	return a
}

func (a Artifacts) clone() Artifacts {
	a.TranscriptionSegments = slices.Clone(a.TranscriptionSegments)
	a.TranslationSegments = slices.Clone(a.TranslationSegments)
	if a.SubtitleStyle != nil {
		style := *a.SubtitleStyle
		a.SubtitleStyle = &style
	}
	return a
}

// normalize replaces missing or invalid enum and language values with their
// defaults.
func (a *Artifacts) normalize() {
	if !a.AudioFormat.Valid() {
		a.AudioFormat = media.AudioWAV
	}
	if !a.OutputFormat.Valid() {
		a.OutputFormat = media.OutputMP4
	}
	a.SourceLanguage = normalizeLanguage(a.SourceLanguage, defaultSourceLanguage)
	a.TargetLanguage = normalizeLanguage(a.TargetLanguage, defaultTargetLanguage)
}

// ErrInvalidArtifact marks an update whose value Load would not restore as
// given.
var ErrInvalidArtifact = errors.New("invalid artifact")

func validateLanguage(code string) error {
	if code == "" || code != strings.TrimSpace(code) {
		return fmt.Errorf("%w: language %q", ErrInvalidArtifact, code)
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("%w: language %q: %v", ErrInvalidArtifact, code, err)
	}
	return nil
}

func normalizeLanguage(code, fallback string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return fallback
	}
	if _, err := language.Parse(code); err != nil {
		return fallback
	}
	return code
}

// Field names one artifact.
type Field int

const (
	FieldVideoFile Field = iota
	FieldExtractedAudio
	FieldAudioFile
	FieldFinalVideo
	FieldAudioFormat
	FieldTranscriptionSRT
	FieldTranscriptionSegments
	FieldSelectedWhisperModel
	FieldSelectedTranslationModel
	FieldOriginalSRT
	FieldTranslatedSRT
	FieldSourceLanguage
	FieldTargetLanguage
	FieldTranslationSegments
	FieldSubtitleStyle
	FieldOutputFormat
)

var fieldNames = [...]string{
	FieldVideoFile:                "videoFile",
	FieldExtractedAudio:           "extractedAudio",
	FieldAudioFile:                "audioFile",
	FieldFinalVideo:               "finalVideo",
	FieldAudioFormat:              "audioFormat",
	FieldTranscriptionSRT:         "transcriptionSRT",
	FieldTranscriptionSegments:    "transcriptionSegments",
	FieldSelectedWhisperModel:     "selectedWhisperModel",
	FieldSelectedTranslationModel: "selectedTranslationModel",
	FieldOriginalSRT:              "originalSRT",
	FieldTranslatedSRT:            "translatedSRT",
	FieldSourceLanguage:           "sourceLanguage",
	FieldTargetLanguage:           "targetLanguage",
	FieldTranslationSegments:      "translationSegments",
	FieldSubtitleStyle:            "subtitleStyle",
	FieldOutputFormat:             "outputFormat",
}

// Binary reports whether f lives in the in-memory tier.
func (f Field) Binary() bool {
	return f <= FieldFinalVideo
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "unknown"
	}
	return fieldNames[f]
}

// ArtifactUpdate sets one artifact field. Build values with the Set*
// constructors.
type ArtifactUpdate struct {
	field Field
	apply func(*Artifacts)
	check func() error
}

// Field returns the artifact the update writes.
func (u ArtifactUpdate) Field() Field { return u.field }

// Validate reports whether the update carries a value the persisted tier can
// hold unchanged.
func (u ArtifactUpdate) Validate() error {
	if u.apply == nil {
		return fmt.Errorf("%w: empty update", ErrInvalidArtifact)
	}
	if u.check == nil {
		return nil
	}
	return u.check()
}

// SetVideoFile records the source video. Binary tier.
func SetVideoFile(ref *FileRef) ArtifactUpdate {
	return ArtifactUpdate{field: FieldVideoFile, apply: func(a *Artifacts) { a.VideoFile = ref }}
}

// SetExtractedAudio stores the extracted audio bytes. Binary tier.
func SetExtractedAudio(data []byte) ArtifactUpdate {
	return ArtifactUpdate{field: FieldExtractedAudio, apply: func(a *Artifacts) { a.ExtractedAudio = data }}
}

// SetAudioFile records a user-supplied audio file. Binary tier.
func SetAudioFile(ref *FileRef) ArtifactUpdate {
	return ArtifactUpdate{field: FieldAudioFile, apply: func(a *Artifacts) { a.AudioFile = ref }}
}

// SetFinalVideo stores the merged output video. Binary tier.
func SetFinalVideo(data []byte) ArtifactUpdate {
	return ArtifactUpdate{field: FieldFinalVideo, apply: func(a *Artifacts) { a.FinalVideo = data }}
}

// SetAudioFormat selects the extraction format; only wav and mp3 are valid.
func SetAudioFormat(format media.AudioFormat) ArtifactUpdate {
	return ArtifactUpdate{
		field: FieldAudioFormat,
		apply: func(a *Artifacts) { a.AudioFormat = format },
		check: func() error {
			if !format.Valid() {
				return fmt.Errorf("%w: audio format %q", ErrInvalidArtifact, format)
			}
			return nil
		},
	}
}

// SetTranscriptionSRT stores the transcription as SRT text.
func SetTranscriptionSRT(srt string) ArtifactUpdate {
	return ArtifactUpdate{field: FieldTranscriptionSRT, apply: func(a *Artifacts) { a.TranscriptionSRT = srt }}
}

// SetTranscriptionSegments stores the parsed transcription cues.
func SetTranscriptionSegments(segments []subtitles.Segment) ArtifactUpdate {
	return ArtifactUpdate{field: FieldTranscriptionSegments, apply: func(a *Artifacts) { a.TranscriptionSegments = segments }}
}

// SetSelectedWhisperModel records the speech-to-text model in use.
func SetSelectedWhisperModel(id string) ArtifactUpdate {
	return ArtifactUpdate{field: FieldSelectedWhisperModel, apply: func(a *Artifacts) { a.SelectedWhisperModel = id }}
}

// SetSelectedTranslationModel records the translation model in use.
func SetSelectedTranslationModel(id string) ArtifactUpdate {
	return ArtifactUpdate{field: FieldSelectedTranslationModel, apply: func(a *Artifacts) { a.SelectedTranslationModel = id }}
}

// SetOriginalSRT stores the subtitles the translation starts from.
func SetOriginalSRT(srt string) ArtifactUpdate {
	return ArtifactUpdate{field: FieldOriginalSRT, apply: func(a *Artifacts) { a.OriginalSRT = srt }}
}

// SetTranslatedSRT stores the translated subtitles as SRT text.
func SetTranslatedSRT(srt string) ArtifactUpdate {
	return ArtifactUpdate{field: FieldTranslatedSRT, apply: func(a *Artifacts) { a.TranslatedSRT = srt }}
}

// SetSourceLanguage sets the spoken language; code must be a BCP 47 tag.
func SetSourceLanguage(code string) ArtifactUpdate {
	return ArtifactUpdate{
		field: FieldSourceLanguage,
		apply: func(a *Artifacts) { a.SourceLanguage = code },
		check: func() error { return validateLanguage(code) },
	}
}

// SetTargetLanguage sets the subtitle language; code must be a BCP 47 tag.
func SetTargetLanguage(code string) ArtifactUpdate {
	return ArtifactUpdate{
		field: FieldTargetLanguage,
		apply: func(a *Artifacts) { a.TargetLanguage = code },
		check: func() error { return validateLanguage(code) },
	}
}

// SetTranslationSegments stores the parsed translated cues.
func SetTranslationSegments(segments []subtitles.Segment) ArtifactUpdate {
	return ArtifactUpdate{field: FieldTranslationSegments, apply: func(a *Artifacts) { a.TranslationSegments = segments }}
}

// SetSubtitleStyle stores the burn-in style; nil restores the default.
func SetSubtitleStyle(style *media.SubtitleStyle) ArtifactUpdate {
	return ArtifactUpdate{
		field: FieldSubtitleStyle,
		apply: func(a *Artifacts) { a.SubtitleStyle = style },
		check: func() error {
			if style == nil {
				return nil
			}
			if err := style.Validate(); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
			}
			return nil
		},
	}
}

// SetOutputFormat selects the merged container; only mp4 and webm are valid.
func SetOutputFormat(format media.OutputFormat) ArtifactUpdate {
	return ArtifactUpdate{
		field: FieldOutputFormat,
		apply: func(a *Artifacts) { a.OutputFormat = format },
		check: func() error {
			if !format.Valid() {
				return fmt.Errorf("%w: output format %q", ErrInvalidArtifact, format)
			}
			return nil
		},
	}
}
