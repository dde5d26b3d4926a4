package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidsub/internal/config"
	"vidsub/internal/subtitles"
	"vidsub/internal/workflow"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load subtitles produced outside vidsub",
	}
	importCmd.AddCommand(newImportSRTCommand(ctx))
	importCmd.AddCommand(newImportTranslatedCommand(ctx))
	return importCmd
}

func newImportSRTCommand(ctx *commandContext) *cobra.Command {
	var jump bool
	cmd := &cobra.Command{
		Use:   "srt <file>",
		Short: "Use an SRT file as the subtitles to translate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, segments, err := readSRT(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := s.store.UpdateArtifacts(
					workflow.SetTranscriptionSRT(content),
					workflow.SetTranscriptionSegments(segments),
					workflow.SetOriginalSRT(content),
				); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cues\n", len(segments))
				if jump {
					return jumpTo(cmd, s, workflow.StepTranslate)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jump, "goto", true, "Move to the translate step after importing")
	return cmd
}

func newImportTranslatedCommand(ctx *commandContext) *cobra.Command {
	var jump bool
	cmd := &cobra.Command{
		Use:   "translated <file>",
		Short: "Use an SRT file as the translated subtitles to burn in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, segments, err := readSRT(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session) error {
				// Segments are derived when the merge step is entered.
				if err := s.store.UpdateArtifacts(
					workflow.SetTranslatedSRT(content),
					workflow.SetTranslationSegments(nil),
				); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d translated cues\n", len(segments))
				if jump {
					return jumpTo(cmd, s, workflow.StepMerge)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jump, "goto", true, "Move to the merge step after importing")
	return cmd
}

func readSRT(arg string) (string, []subtitles.Segment, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read subtitles: %w", err)
	}
	segments := subtitles.Parse(string(data))
	if len(segments) == 0 {
		return "", nil, fmt.Errorf("%s contains no subtitle cues", path)
	}
	return subtitles.Format(segments), segments, nil
}

func jumpTo(cmd *cobra.Command, s *session, step workflow.Step) error {
	if !s.store.JumpToStep(step) {
		return fmt.Errorf("step %s is not accessible under the %s policy", step, s.store.Policy())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Now at %s\n", step)
	return nil
}
