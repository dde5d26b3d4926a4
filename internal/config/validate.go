package config

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkflow() error {
	switch c.Workflow.StateBackend {
	case StateBackendSQLite, StateBackendFile:
	default:
		return fmt.Errorf("workflow.state_backend: unsupported value %q (want sqlite or file)", c.Workflow.StateBackend)
	}
	switch c.Workflow.StepPolicy {
	case StepPolicyPermissive, StepPolicyGated:
	default:
		return fmt.Errorf("workflow.step_policy: unsupported value %q (want permissive or gated)", c.Workflow.StepPolicy)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.ChunkLengthSeconds < 0 {
		return errors.New("transcription.chunk_length_seconds must be >= 0")
	}
	if c.Transcription.ChunkLengthSeconds > maxTranscriptionChunkSeconds {
		return fmt.Errorf("transcription.chunk_length_seconds must be <= %d", maxTranscriptionChunkSeconds)
	}
	switch c.Transcription.Task {
	case "transcribe", "translate":
	default:
		return fmt.Errorf("transcription.task: unsupported value %q", c.Transcription.Task)
	}
	if c.Transcription.Language != "" {
		if err := validateLanguage("transcription.language", c.Transcription.Language); err != nil {
			return err
		}
	}
	switch c.Transcription.WhisperXVADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.whisperx_vad_method: unsupported value %q", c.Transcription.WhisperXVADMethod)
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if err := validateLanguage("translation.source_language", c.Translation.SourceLanguage); err != nil {
		return err
	}
	if err := validateLanguage("translation.target_language", c.Translation.TargetLanguage); err != nil {
		return err
	}
	if c.Translation.MaxLength > maxTranslationMaxLengthTokens {
		return fmt.Errorf("translation.max_length must be <= %d", maxTranslationMaxLengthTokens)
	}
	return nil
}

func (c *Config) validateMedia() error {
	switch c.Media.AudioFormat {
	case "wav", "mp3":
	default:
		return fmt.Errorf("media.audio_format: unsupported value %q (want wav or mp3)", c.Media.AudioFormat)
	}
	switch c.Media.OutputFormat {
	case "mp4", "webm":
	default:
		return fmt.Errorf("media.output_format: unsupported value %q (want mp4 or webm)", c.Media.OutputFormat)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateLanguage(field, code string) error {
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("%s: invalid language code %q: %w", field, code, err)
	}
	return nil
}
