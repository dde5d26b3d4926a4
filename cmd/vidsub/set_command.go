package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"vidsub/internal/media"
	"vidsub/internal/transcription"
	"vidsub/internal/translation"
	"vidsub/internal/workflow"
)

type setter func(value string) (workflow.ArtifactUpdate, error)

var setters = map[string]setter{
	"source-language": func(v string) (workflow.ArtifactUpdate, error) {
		code, err := languageCode(v)
		return workflow.SetSourceLanguage(code), err
	},
	"target-language": func(v string) (workflow.ArtifactUpdate, error) {
		code, err := languageCode(v)
		return workflow.SetTargetLanguage(code), err
	},
	"audio-format": func(v string) (workflow.ArtifactUpdate, error) {
		format, ok := media.ParseAudioFormat(v)
		if !ok {
			return workflow.ArtifactUpdate{}, fmt.Errorf("unsupported audio format %q", v)
		}
		return workflow.SetAudioFormat(format), nil
	},
	"output-format": func(v string) (workflow.ArtifactUpdate, error) {
		format, ok := media.ParseOutputFormat(v)
		if !ok {
			return workflow.ArtifactUpdate{}, fmt.Errorf("unsupported output format %q", v)
		}
		return workflow.SetOutputFormat(format), nil
	},
	"whisper-model": func(v string) (workflow.ArtifactUpdate, error) {
		if _, ok := transcription.LookupModel(v); !ok {
			return workflow.ArtifactUpdate{}, fmt.Errorf("unknown whisper model %q (see vidsub models)", v)
		}
		return workflow.SetSelectedWhisperModel(v), nil
	},
	"translation-model": func(v string) (workflow.ArtifactUpdate, error) {
		if _, ok := translation.LookupModel(v); !ok {
			return workflow.ArtifactUpdate{}, fmt.Errorf("unknown translation model %q (see vidsub models)", v)
		}
		return workflow.SetSelectedTranslationModel(v), nil
	},
}

func setterKeys() []string {
	keys := make([]string, 0, len(setters))
	for key := range setters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func languageCode(value string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", value, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a workflow setting",
		Long:  "Change a workflow setting. Keys: " + strings.Join(setterKeys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(strings.TrimSpace(args[0]))
			set, ok := setters[key]
			if !ok {
				return fmt.Errorf("unknown setting %q; expected one of %s", args[0], strings.Join(setterKeys(), ", "))
			}
			update, err := set(strings.TrimSpace(args[1]))
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := s.store.UpdateArtifacts(update); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s set\n", key)
				return nil
			})
		},
	}
	cmd.AddCommand(newSetStyleCommand(ctx))
	return cmd
}

func newSetStyleCommand(ctx *commandContext) *cobra.Command {
	var reset bool
	style := media.DefaultSubtitleStyle()

	cmd := &cobra.Command{
		Use:   "style",
		Short: "Change how burned-in subtitles look",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if reset {
					if err := s.store.UpdateArtifacts(workflow.SetSubtitleStyle(nil)); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Subtitle style reset to default")
					return nil
				}
				merged := media.DefaultSubtitleStyle()
				if current := s.store.Artifacts().SubtitleStyle; current != nil {
					merged = *current
				}
				applyStyleFlags(cmd, &merged, style)
				if err := merged.Validate(); err != nil {
					return err
				}
				if err := s.store.UpdateArtifacts(workflow.SetSubtitleStyle(&merged)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subtitle style: %s\n", merged.ForceStyle())
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&reset, "reset", false, "Restore the default style")
	flags.StringVar(&style.FontFamily, "font", style.FontFamily, "Font family")
	flags.IntVar(&style.FontSize, "font-size", style.FontSize, "Font size in pixels")
	flags.StringVar(&style.FontColor, "color", style.FontColor, "Text colour (#RRGGBB)")
	flags.StringVar(&style.BackgroundColor, "background", style.BackgroundColor, "Box colour (#RRGGBB)")
	flags.Float64Var(&style.BackgroundOpacity, "background-opacity", style.BackgroundOpacity, "Box opacity between 0 and 1")
	flags.StringVar(&style.OutlineColor, "outline", style.OutlineColor, "Outline colour (#RRGGBB)")
	flags.IntVar(&style.OutlineWidth, "outline-width", style.OutlineWidth, "Outline width")
	flags.StringVar(&style.Alignment, "align", style.Alignment, "left, center or right")
	flags.StringVar(&style.VerticalPosition, "position", style.VerticalPosition, "top, middle or bottom")
	flags.IntVar(&style.MarginHorizontal, "margin-x", style.MarginHorizontal, "Horizontal margin")
	flags.IntVar(&style.MarginVertical, "margin-y", style.MarginVertical, "Vertical margin")
	flags.BoolVar(&style.Bold, "bold", style.Bold, "Bold text")
	flags.BoolVar(&style.Italic, "italic", style.Italic, "Italic text")
	return cmd
}

// applyStyleFlags copies only the flags the user set, so earlier changes
// survive.
func applyStyleFlags(cmd *cobra.Command, dst *media.SubtitleStyle, src media.SubtitleStyle) {
	changed := cmd.Flags().Changed
	if changed("font") {
		dst.FontFamily = src.FontFamily
	}
	if changed("font-size") {
		dst.FontSize = src.FontSize
	}
	if changed("color") {
		dst.FontColor = src.FontColor
	}
	if changed("background") {
		dst.BackgroundColor = src.BackgroundColor
	}
	if changed("background-opacity") {
		dst.BackgroundOpacity = src.BackgroundOpacity
	}
	if changed("outline") {
		dst.OutlineColor = src.OutlineColor
	}
	if changed("outline-width") {
		dst.OutlineWidth = src.OutlineWidth
	}
	if changed("align") {
		dst.Alignment = src.Alignment
	}
	if changed("position") {
		dst.VerticalPosition = src.VerticalPosition
	}
	if changed("margin-x") {
		dst.MarginHorizontal = src.MarginHorizontal
	}
	if changed("margin-y") {
		dst.MarginVertical = src.MarginVertical
	}
	if changed("bold") {
		dst.Bold = src.Bold
	}
	if changed("italic") {
		dst.Italic = src.Italic
	}
}
