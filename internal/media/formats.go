package media

import "strings"

// AudioFormat is the container used for the extracted audio artifact.
type AudioFormat string

const (
	AudioWAV AudioFormat = "wav"
	AudioMP3 AudioFormat = "mp3"
)

// Valid reports whether f is a supported audio format.
func (f AudioFormat) Valid() bool {
	return f == AudioWAV || f == AudioMP3
}

// Codec returns the ffmpeg audio encoder for f.
func (f AudioFormat) Codec() string {
	if f == AudioMP3 {
		return "libmp3lame"
	}
	return "pcm_s16le"
}

// ParseAudioFormat normalizes value, returning false for unknown formats.
func ParseAudioFormat(value string) (AudioFormat, bool) {
	f := AudioFormat(strings.ToLower(strings.TrimSpace(value)))
	return f, f.Valid()
}

// OutputFormat is the container of the final subtitled video.
type OutputFormat string

const (
	OutputMP4  OutputFormat = "mp4"
	OutputWebM OutputFormat = "webm"
)

// Valid reports whether f is a supported output format.
func (f OutputFormat) Valid() bool {
	return f == OutputMP4 || f == OutputWebM
}

// ParseOutputFormat normalizes value, returning false for unknown formats.
func ParseOutputFormat(value string) (OutputFormat, bool) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(value)))
	return f, f.Valid()
}

func (f OutputFormat) codecArgs() []string {
	if f == OutputWebM {
		return []string{"-c:v", "libvpx-vp9", "-crf", "32", "-b:v", "0", "-c:a", "libopus"}
	}
	return []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-c:a", "copy", "-movflags", "+faststart"}
}
