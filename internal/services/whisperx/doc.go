// Package whisperx runs WhisperX through uvx as the speech recognition engine
// behind the transcription capability.
//
// Each chunk is written as a 16 kHz mono WAV into a scratch directory,
// transcribed by a one-shot whisperx process, and read back from the JSON
// output. Model ids from the transcription catalog are mapped to WhisperX
// model names, so "whisper-large-v3" runs as "large-v3".
package whisperx
