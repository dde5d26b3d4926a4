// Package ffprobe decodes ffprobe JSON into the container and stream facts the
// transcoder needs (duration, dimensions, frame rate).
package ffprobe
