// Command vidsub drives the subtitle workflow from the terminal: extract the
// audio track of a video, transcribe it, translate the subtitles and burn
// them back into the video.
//
// State lives in a durable slot (SQLite by default) so that step position,
// subtitles and settings survive between invocations. Binary artifacts such
// as extracted audio only live for the duration of one "vidsub run".
//
// Common flows:
//
//	vidsub run movie.mp4                 run every step from the current one
//	vidsub run movie.mp4 --to transcribe stop after transcription
//	vidsub import srt edited.srt         replace the subtitles to translate
//	vidsub goto 4                        jump to the merge step
//	vidsub status                        show step position and artifacts
package main
