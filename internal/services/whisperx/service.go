package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"vidsub/internal/inference"
	"vidsub/internal/logging"
	"vidsub/internal/media"
	"vidsub/internal/transcription"
)

// CommandRunner executes an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Recognizer implements transcription.Recognizer with WhisperX.
type Recognizer struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner CommandRunner

	mu    sync.Mutex
	model string
}

// NewRecognizer creates a WhisperX recognizer with the given configuration.
func NewRecognizer(cfg Config, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recognizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "whisperx"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (r *Recognizer) WithCommandRunner(runner CommandRunner) {
	r.commandRunner = runner
}

// SetVADMethod updates the VAD method at runtime (used when HF token validation fails).
func (r *Recognizer) SetVADMethod(method string) {
	r.cfg.VADMethod = method
}

// Model returns the WhisperX model name in use.
func (r *Recognizer) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != "" {
		return r.model
	}
	return DefaultModel
}

// Load selects the model. WhisperX downloads weights on first use, so the
// only progress reported is the resolution of the model name.
func (r *Recognizer) Load(ctx context.Context, modelID string, report func(inference.LoadProgress)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	model := transcription.EngineModel(modelID)
	if model == "" {
		return errors.New("whisperx: model id required")
	}
	if _, ok := transcription.LookupModel(modelID); !ok {
		r.logger.Debug("model not in catalog; passing through",
			logging.String(logging.FieldModelID, modelID))
	}
	if report != nil {
		report(inference.LoadProgress{ResourceID: modelID, Name: "whisperx " + model, Percent: 100})
	}
	r.mu.Lock()
	r.model = model
	r.mu.Unlock()
	r.logger.Info("whisperx model selected",
		logging.String(logging.FieldModelID, modelID),
		logging.String("engine_model", model),
		logging.Bool("cuda", r.cfg.CUDAEnabled),
	)
	return nil
}

// Release forgets the selected model.
func (r *Recognizer) Release() {
	r.mu.Lock()
	r.model = ""
	r.mu.Unlock()
}

// Transcribe runs WhisperX on one chunk of samples.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts transcription.Options) (transcription.Transcript, error) {
	if len(samples) == 0 {
		return transcription.Transcript{}, errors.New("whisperx: no samples")
	}
	dir, err := os.MkdirTemp(r.cfg.WorkDir, "whisperx-")
	if err != nil {
		return transcription.Transcript{}, fmt.Errorf("whisperx: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "chunk.wav")
	if err := os.WriteFile(source, media.EncodeWAV(samples, sampleRate), 0o644); err != nil {
		return transcription.Transcript{}, fmt.Errorf("whisperx: write chunk: %w", err)
	}
	if err := r.run(ctx, UVXCommand, r.buildArgs(source, dir, opts)...); err != nil {
		return transcription.Transcript{}, fmt.Errorf("whisperx: %w", err)
	}
	segments, err := LoadSegments(filepath.Join(dir, "chunk.json"))
	if err != nil {
		return transcription.Transcript{}, fmt.Errorf("whisperx: %w", err)
	}
	return toTranscript(segments), nil
}

// run executes a command, using the custom runner if set.
func (r *Recognizer) run(ctx context.Context, name string, args ...string) error {
	if r.commandRunner != nil {
		return r.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (r *Recognizer) buildArgs(source, outputDir string, opts transcription.Options) []string {
	args := make([]string, 0, 40)

	if r.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", r.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
	)
	if opts.Task == transcription.TaskTranslate {
		args = append(args, "--task", transcription.TaskTranslate)
	}

	vadMethod := r.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && r.cfg.HFToken != "" {
		args = append(args, "--hf_token", r.cfg.HFToken)
	}

	if lang := baseLanguage(opts.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if r.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// baseLanguage reduces a language tag such as "en-US" to "en". Unparsable
// values let WhisperX detect the language.
func baseLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

func toTranscript(segments []Segment) transcription.Transcript {
	var out transcription.Transcript
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		out.Chunks = append(out.Chunks, transcription.Chunk{
			Text:      text,
			Timestamp: [2]float64{seg.Start, seg.End},
		})
	}
	out.Text = strings.Join(texts, " ")
	return out
}
