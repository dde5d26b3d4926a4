// Package media wraps the ffmpeg tool chain used by the workflow: audio
// extraction, speech decoding for the transcriber, and burning styled
// subtitles into the final video.
//
// The Transcoder interface is what the step runner depends on; FFmpeg is the
// production implementation and shells out to ffmpeg/ffprobe through an
// injectable command runner so tests never need the binaries.
package media
