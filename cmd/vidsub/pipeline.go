package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"vidsub/internal/config"
	"vidsub/internal/inference"
	"vidsub/internal/media"
	"vidsub/internal/services/llm"
	"vidsub/internal/services/whisperx"
	"vidsub/internal/stageexec"
	"vidsub/internal/transcription"
	"vidsub/internal/translation"
)

type (
	transcriptionClient = inference.Client[transcription.Request, transcription.Options, transcription.Transcript]
	translationClient   = inference.Client[translation.Request, translation.Options, translation.Result]
)

const (
	capabilityTranscription = "transcription"
	capabilityTranslation   = "translation"
)

// newCapability builds the named inference capability from cfg.
func newCapability(name string, cfg *config.Config, logger *slog.Logger) (inference.Capability, error) {
	switch name {
	case capabilityTranscription:
		return transcription.NewCapability(whisperx.NewRecognizer(whisperx.Config{
			CUDAEnabled: cfg.Transcription.WhisperXCUDAEnabled,
			VADMethod:   cfg.Transcription.WhisperXVADMethod,
			HFToken:     os.Getenv("HF_TOKEN"),
			WorkDir:     cfg.Paths.WorkDir,
		}, logger)), nil
	case capabilityTranslation:
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
		return translation.NewCapability(llm.NewTranslator(client), logger), nil
	default:
		return nil, fmt.Errorf("unknown capability %q (expected %s or %s)", name, capabilityTranscription, capabilityTranslation)
	}
}

type pipelineOptions struct {
	isolated   bool
	outputDir  string
	configPath string
}

// pipeline owns the inference clients and the step runner of one run.
type pipeline struct {
	media       media.Transcoder
	runner      *stageexec.Runner
	transcriber *transcriptionClient
	translator  *translationClient
}

func buildPipeline(ctx context.Context, s *session, opts pipelineOptions) (*pipeline, error) {
	cfg := s.cfg
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary, cfg.Paths.WorkDir, s.logger)

	transcriberPort, err := capabilityPort(ctx, capabilityTranscription, cfg, s.logger, opts)
	if err != nil {
		return nil, err
	}
	translatorPort, err := capabilityPort(ctx, capabilityTranslation, cfg, s.logger, opts)
	if err != nil {
		transcriberPort.Terminate()
		return nil, err
	}

	p := &pipeline{
		media: ffmpeg,
		transcriber: inference.NewClient[transcription.Request, transcription.Options, transcription.Transcript](
			transcriberPort, inference.WithLogger(s.logger), inference.WithName(capabilityTranscription)),
		translator: inference.NewClient[translation.Request, translation.Options, translation.Result](
			translatorPort, inference.WithLogger(s.logger), inference.WithName(capabilityTranslation)),
	}
	p.runner = stageexec.NewRunner(s.store, s.logger,
		stageexec.Inspect{Media: ffmpeg},
		stageexec.ExtractAudio{Media: ffmpeg},
		stageexec.Transcribe{
			Media:  ffmpeg,
			Client: p.transcriber,
			Model:  cfg.Transcription.Model,
			Options: transcription.Options{
				Language:           cfg.Transcription.Language,
				Task:               cfg.Transcription.Task,
				ChunkLengthSeconds: cfg.Transcription.ChunkLengthSeconds,
			},
		},
		stageexec.Translate{
			Client:    p.translator,
			Model:     cfg.Translation.Model,
			MaxLength: cfg.Translation.MaxLength,
		},
		stageexec.Merge{Media: ffmpeg, OutputDir: opts.outputDir},
	)
	return p, nil
}

func capabilityPort(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger, opts pipelineOptions) (inference.Port, error) {
	if opts.isolated {
		return workerProcessPort(ctx, name, opts.configPath)
	}
	capability, err := newCapability(name, cfg, logger)
	if err != nil {
		return nil, err
	}
	return inference.Spawn(ctx, capability, inference.WithWorkerLogger(logger)), nil
}

// workerProcessPort runs the capability in a child "vidsub worker" process.
func workerProcessPort(ctx context.Context, name, configPath string) (inference.Port, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate vidsub executable: %w", err)
	}
	args := []string{"worker", name}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = 5 * time.Second
	return inference.NewCommandPort(cmd)
}

// Close stops both workers. Pending requests fail with inference.ErrClosed.
func (p *pipeline) Close() {
	p.transcriber.Cleanup()
	p.translator.Cleanup()
}
