// Package subtitles parses and renders SubRip (SRT) subtitle documents.
//
// Segments carry both the textual HH:MM:SS,mmm timestamps and their numeric
// second offsets so the workflow can persist them as-is and the translation
// step can re-emit translated text without re-timing cues.
package subtitles
