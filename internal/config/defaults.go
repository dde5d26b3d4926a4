package config

const (
	defaultConfigPath             = "~/.config/vidsub/config.toml"
	defaultStateDir               = "~/.local/share/vidsub/state"
	defaultLogDir                 = "~/.local/share/vidsub/logs"
	defaultWorkDir                = "~/.local/share/vidsub/work"
	defaultStateBackend           = StateBackendSQLite
	defaultStateKey               = "video-translator-workflow"
	defaultStepPolicy             = StepPolicyPermissive
	defaultTranscriptionModel     = "whisper-base"
	defaultTranscriptionTask      = "transcribe"
	defaultWhisperXVADMethod      = "silero"
	defaultTranslationModel       = "opus-mt-en-es"
	defaultSourceLanguage         = "en"
	defaultTargetLanguage         = "es"
	defaultTranslationMaxLength   = 512
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/vidsub/vidsub"
	defaultLLMTitle               = "vidsub translator"
	defaultLLMTimeoutSeconds      = 60
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultAudioFormat            = "wav"
	defaultOutputFormat           = "mp4"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	maxTranscriptionChunkSeconds  = 30
	maxTranslationMaxLengthTokens = 4096
)

// Supported workflow.state_backend values.
const (
	StateBackendSQLite = "sqlite"
	StateBackendFile   = "file"
)

// Supported workflow.step_policy values.
const (
	StepPolicyPermissive = "permissive"
	StepPolicyGated      = "gated"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			WorkDir:  defaultWorkDir,
		},
		Workflow: Workflow{
			StateBackend: defaultStateBackend,
			StateKey:     defaultStateKey,
			StepPolicy:   defaultStepPolicy,
		},
		Transcription: Transcription{
			Model:             defaultTranscriptionModel,
			Task:              defaultTranscriptionTask,
			WhisperXVADMethod: defaultWhisperXVADMethod,
		},
		Translation: Translation{
			Model:          defaultTranslationModel,
			SourceLanguage: defaultSourceLanguage,
			TargetLanguage: defaultTargetLanguage,
			MaxLength:      defaultTranslationMaxLength,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Media: Media{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			AudioFormat:   defaultAudioFormat,
			OutputFormat:  defaultOutputFormat,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
