// Package preflight provides readiness checks for the binaries, directories
// and remote services vidsub depends on.
//
// The CLI runs RunAll before "vidsub run" starts a pipeline so that a missing
// ffmpeg or an invalid API key fails fast instead of after minutes of
// transcription. "vidsub doctor" prints the same results plus the individual
// binary statuses from CheckSystemDeps.
package preflight
