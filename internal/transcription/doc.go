// Package transcription is the speech-to-text capability served by an
// inference worker.
//
// Audio is split into equal, non-overlapping chunks whose length adapts to the
// total duration. Each chunk goes through a Recognizer, and the per-chunk
// results are shifted onto the global timeline and merged into one
// Transcript.
package transcription
