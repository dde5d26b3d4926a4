package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vidsub/internal/logging"
	"vidsub/internal/media/ffprobe"
)

// Metadata summarizes a source video.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	BitRate  int64
	Format   string
}

// Transcoder is the media collaborator used by the workflow steps.
type Transcoder interface {
	ExtractAudio(ctx context.Context, videoPath string, format AudioFormat, onProgress func(float64)) ([]byte, error)
	DecodeSpeech(ctx context.Context, audio []byte) ([]float32, error)
	MergeSubtitles(ctx context.Context, videoPath, srt string, style SubtitleStyle, format OutputFormat, onProgress func(float64)) ([]byte, error)
	Metadata(ctx context.Context, videoPath string) (Metadata, error)
}

// CommandRunner executes an external command with optional stdin and stdout.
type CommandRunner func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error

// FFmpeg implements Transcoder with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegBinary  string
	ffprobeBinary string
	workDir       string
	logger        *slog.Logger
	run           CommandRunner
}

// NewFFmpeg constructs a transcoder. workDir holds scratch files; the system
// temp directory is used when empty.
func NewFFmpeg(ffmpegBinary, ffprobeBinary, workDir string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpeg{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		workDir:       workDir,
		logger:        logging.NewComponentLogger(logger, "ffmpeg"),
		run:           execRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (f *FFmpeg) WithCommandRunner(r CommandRunner) {
	if f != nil && r != nil {
		f.run = r
	}
}

// Metadata reads container and stream details of videoPath with ffprobe.
func (f *FFmpeg) Metadata(ctx context.Context, videoPath string) (Metadata, error) {
	var out bytes.Buffer
	if err := f.run(ctx, nil, &out, f.ffprobeBinary, ffprobe.Args(videoPath)...); err != nil {
		return Metadata{}, fmt.Errorf("read metadata of %s: %w", filepath.Base(videoPath), err)
	}
	result, err := ffprobe.Decode(out.Bytes())
	if err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		Duration: result.DurationSeconds(),
		BitRate:  result.BitRate(),
		Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(videoPath)), "."),
	}
	if math.IsNaN(meta.Duration) {
		meta.Duration = 0
	}
	if video, ok := result.VideoStream(); ok {
		meta.Width = video.Width
		meta.Height = video.Height
		meta.FPS = video.FramesPerSecond()
	}
	return meta, nil
}

// ExtractAudio drops the video stream and encodes 44.1 kHz stereo audio.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath string, format AudioFormat, onProgress func(float64)) ([]byte, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("extract audio: unsupported format %q", format)
	}
	dir, cleanup, err := f.scratchDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dest := filepath.Join(dir, "audio."+string(format))
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-acodec", format.Codec(),
		"-ar", "44100",
		"-ac", "2",
		"-progress", "pipe:1", "-nostats",
		dest,
	}
	if err := f.runWithProgress(ctx, videoPath, onProgress, args); err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return nil, fmt.Errorf("extract audio: read output: %w", err)
	}
	f.logger.Debug("audio extracted",
		logging.String("source", filepath.Base(videoPath)),
		logging.String("format", string(format)),
		logging.Int("bytes", len(data)),
	)
	return data, nil
}

// DecodeSpeech converts an encoded audio artifact into mono float samples at
// SpeechSampleRate.
func (f *FFmpeg) DecodeSpeech(ctx context.Context, audio []byte) ([]float32, error) {
	if len(audio) == 0 {
		return nil, errors.New("decode speech: empty audio")
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", strconv.Itoa(SpeechSampleRate),
		"-f", "f32le",
		"pipe:1",
	}
	var out bytes.Buffer
	if err := f.run(ctx, bytes.NewReader(audio), &out, f.ffmpegBinary, args...); err != nil {
		return nil, fmt.Errorf("decode speech: %w", err)
	}
	return DecodeFloat32LE(out.Bytes())
}

// MergeSubtitles burns srt into the video using the subtitles filter.
func (f *FFmpeg) MergeSubtitles(ctx context.Context, videoPath, srt string, style SubtitleStyle, format OutputFormat, onProgress func(float64)) ([]byte, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("merge subtitles: unsupported format %q", format)
	}
	if strings.TrimSpace(srt) == "" {
		return nil, errors.New("merge subtitles: empty subtitle document")
	}
	if err := style.Validate(); err != nil {
		return nil, fmt.Errorf("merge subtitles: %w", err)
	}
	dir, cleanup, err := f.scratchDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	srtPath := filepath.Join(dir, "subtitles.srt")
	if err := os.WriteFile(srtPath, []byte(srt), 0o644); err != nil {
		return nil, fmt.Errorf("merge subtitles: write srt: %w", err)
	}
	dest := filepath.Join(dir, "output."+string(format))
	args := MergeArgs(videoPath, srtPath, dest, style, format)
	if err := f.runWithProgress(ctx, videoPath, onProgress, args); err != nil {
		return nil, fmt.Errorf("merge subtitles: %w", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return nil, fmt.Errorf("merge subtitles: read output: %w", err)
	}
	f.logger.Info("subtitles merged",
		logging.String(logging.FieldEventType, "subtitle_merge_complete"),
		logging.String("source", filepath.Base(videoPath)),
		logging.String("format", string(format)),
		logging.Int("bytes", len(data)),
	)
	return data, nil
}

// MergeArgs builds the ffmpeg arguments for burning srtPath into videoPath.
func MergeArgs(videoPath, srtPath, dest string, style SubtitleStyle, format OutputFormat) []string {
	filter := fmt.Sprintf("subtitles=filename='%s':force_style='%s'", escapeFilterValue(srtPath), style.ForceStyle())
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", filter,
	}
	args = append(args, format.codecArgs()...)
	args = append(args, "-avoid_negative_ts", "make_zero", "-progress", "pipe:1", "-nostats", dest)
	return args
}

func (f *FFmpeg) runWithProgress(ctx context.Context, videoPath string, onProgress func(float64), args []string) error {
	var duration float64
	if onProgress != nil {
		if meta, err := f.Metadata(ctx, videoPath); err == nil {
			duration = meta.Duration
		} else {
			logging.WarnWithContext(f.logger, "duration lookup failed; progress unavailable", "ffprobe_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "progress stays at 0 until completion"),
			)
		}
	}
	reporter := &progressWriter{duration: duration, report: onProgress}
	if err := f.run(ctx, nil, reporter, f.ffmpegBinary, args...); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

func (f *FFmpeg) scratchDir() (string, func(), error) {
	if f.workDir != "" {
		if err := os.MkdirAll(f.workDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("ensure work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(f.workDir, "ffmpeg-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// progressWriter consumes ffmpeg "-progress" key=value lines.
type progressWriter struct {
	duration float64
	report   func(float64)
	partial  []byte
	last     float64
}

func (p *progressWriter) Write(data []byte) (int, error) {
	p.partial = append(p.partial, data...)
	for {
		idx := bytes.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		p.handle(string(p.partial[:idx]))
		p.partial = p.partial[idx+1:]
	}
	return len(data), nil
}

func (p *progressWriter) handle(line string) {
	if p.report == nil || p.duration <= 0 {
		return
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || (key != "out_time_us" && key != "out_time_ms") {
		return
	}
	micros, err := strconv.ParseFloat(value, 64)
	if err != nil || micros < 0 {
		return
	}
	percent := micros / 1e6 / p.duration * 100
	if percent > 99 {
		percent = 99
	}
	if percent > p.last {
		p.last = percent
		p.report(percent)
	}
}

func escapeFilterValue(value string) string {
	replacer := strings.NewReplacer(`\`, `\\\\`, `'`, `'\\\''`, `:`, `\\:`)
	return replacer.Replace(value)
}

func execRunner(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
