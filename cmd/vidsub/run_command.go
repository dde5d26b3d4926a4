package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vidsub/internal/config"
	"vidsub/internal/logging"
	"vidsub/internal/media"
	"vidsub/internal/navigation"
	"vidsub/internal/preflight"
	"vidsub/internal/services"
	"vidsub/internal/stageexec"
	"vidsub/internal/workflow"
)

type runOptions struct {
	audio         string
	from          string
	to            string
	outputDir     string
	isolated      bool
	skipPreflight bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Run the pipeline from the current step",
		Long: "Run the pipeline on a video, starting at the current step (or --from) and " +
			"continuing through --to. Extracted audio and the final video only exist " +
			"for the duration of the run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				return runPipeline(cmd, s, args[0], opts, ctx.configPath)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.audio, "audio", "", "Use this audio file instead of extracting it from the video")
	flags.StringVar(&opts.from, "from", "", "Start at this step instead of the current one")
	flags.StringVar(&opts.to, "to", workflow.LastStep.String(), "Stop after this step")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for the final video (default: next to the source)")
	flags.BoolVar(&opts.isolated, "isolated", false, "Run inference in separate worker processes")
	flags.BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip binary, directory and API checks")
	return cmd
}

func runPipeline(cmd *cobra.Command, s *session, videoArg string, opts runOptions, configPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	last, err := workflow.ParseStep(strings.ToLower(opts.to))
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	video, err := fileRef(videoArg)
	if err != nil {
		return err
	}

	ffmpeg := media.NewFFmpeg(s.cfg.Media.FFmpegBinary, s.cfg.Media.FFprobeBinary, s.cfg.Paths.WorkDir, s.logger)
	var meta media.Metadata
	g, gctx := errgroup.WithContext(ctx)
	if !opts.skipPreflight {
		g.Go(func() error { return checkPreflight(gctx, s.cfg) })
	}
	g.Go(func() error {
		found, err := ffmpeg.Metadata(gctx, video.Path)
		if err != nil {
			return services.Wrap(services.ErrValidation, "run", "metadata", "not a readable video: "+video.Name, err)
		}
		meta = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("video accepted",
		logging.String("video", video.Path),
		logging.Float64("duration_seconds", meta.Duration),
		logging.String("container", meta.Format),
	)

	updates := []workflow.ArtifactUpdate{workflow.SetVideoFile(video)}
	if opts.audio != "" {
		audio, err := fileRef(opts.audio)
		if err != nil {
			return err
		}
		updates = append(updates, workflow.SetAudioFile(audio))
	}
	if err := s.store.UpdateArtifacts(updates...); err != nil {
		return err
	}

	if opts.from != "" {
		path, err := stepPath(opts.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		if err := enterPath(s, path); err != nil {
			return err
		}
	} else if opts.audio != "" && s.store.CurrentStep() == workflow.StepExtract {
		s.store.JumpToStep(workflow.StepTranscribe)
	}
	if s.store.CurrentStep() > last {
		return fmt.Errorf("current step %s is past --to %s", s.store.CurrentStep(), last)
	}

	p, err := buildPipeline(ctx, s, pipelineOptions{
		isolated:   opts.isolated,
		outputDir:  opts.outputDir,
		configPath: configPath,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	printer := newProgressPrinter(cmd.ErrOrStderr())
	p.runner.OnProgress(printer.Update)
	err = p.runner.RunThrough(ctx, last)
	printer.Done()
	if err != nil {
		return err
	}

	artifacts := s.store.Artifacts()
	fmt.Fprintf(out, "Finished %s\n", s.store.CurrentStep())
	if len(artifacts.FinalVideo) > 0 {
		dest := stageexec.OutputPath(video.Path, opts.outputDir, artifacts.TargetLanguage, artifacts.OutputFormat)
		fmt.Fprintf(out, "Subtitled video: %s\n", dest)
	}
	return nil
}

func checkPreflight(ctx context.Context, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "run", "preflight",
		"preflight failed ("+strings.Join(parts, "; ")+"); see vidsub doctor", nil)
}

func enterPath(s *session, path string) error {
	step, _ := navigation.ParsePath(path)
	if navigation.NewGuard(s.store, s.logger).Enter(path) != step {
		return fmt.Errorf("step %s is not accessible under the %s policy", step, s.store.Policy())
	}
	return nil
}

func fileRef(arg string) (*workflow.FileRef, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %q: %w", arg, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &workflow.FileRef{Path: path, Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()}, nil
}
