package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidsub/internal/navigation"
	"vidsub/internal/translation"
	"vidsub/internal/workflow"
)

var titleCase = cases.Title(language.English)

// stepView is the status of one step as shown to the user.
type stepView struct {
	Step       workflow.Step
	Current    bool
	Completed  bool
	Accessible bool
}

func (v stepView) label() string {
	switch {
	case v.Current:
		return "current"
	case v.Completed:
		return "done"
	case v.Accessible:
		return "open"
	default:
		return "locked"
	}
}

func stepViews(store *workflow.Store) []stepView {
	state := store.State()
	views := make([]stepView, 0, len(workflow.Steps()))
	for _, step := range workflow.Steps() {
		views = append(views, stepView{
			Step:       step,
			Current:    state.CurrentStep == step,
			Completed:  slices.Contains(state.CompletedSteps, step),
			Accessible: store.CanAccessStep(step),
		})
	}
	return views
}

func renderStatus(w io.Writer, store *workflow.Store, policy string) {
	colorize := shouldColorize(w)
	state := store.State()

	rows := make([][]string, 0, len(workflow.Steps()))
	for _, view := range stepViews(store) {
		label := view.label()
		if colorize {
			label = colorLabel(label)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", int(view.Step)),
			titleCase.String(view.Step.String()),
			navigation.PathFor(view.Step),
			label,
		})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Step", "Path", "State"}, rows, []columnAlignment{alignRight}))

	fmt.Fprintf(w, "Progress: %.0f%%  Policy: %s  Busy: %s\n", store.StepProgress(), policy, yesNo(state.IsProcessing))
	if state.LastPersistedAt != nil {
		fmt.Fprintf(w, "Last saved: %s\n", state.LastPersistedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Artifact", "Value"}, artifactRows(state.Artifacts, state.SegmentsPending), nil))
}

func artifactRows(a workflow.Artifacts, pending bool) [][]string {
	style := "default"
	if a.SubtitleStyle != nil {
		style = fmt.Sprintf("%s %dpx %s", a.SubtitleStyle.FontFamily, a.SubtitleStyle.FontSize, a.SubtitleStyle.VerticalPosition)
	}
	translated := cueSummary(a.TranslatedSRT)
	if pending {
		translated += " (segments pending)"
	}
	return [][]string{
		{"Source language", languageLabel(a.SourceLanguage)},
		{"Target language", languageLabel(a.TargetLanguage)},
		{"Audio format", string(a.AudioFormat)},
		{"Output format", string(a.OutputFormat)},
		{"Whisper model", orDash(a.SelectedWhisperModel)},
		{"Translation model", orDash(a.SelectedTranslationModel)},
		{"Transcription", cueSummary(a.TranscriptionSRT)},
		{"Original subtitles", cueSummary(a.OriginalSRT)},
		{"Translated subtitles", translated},
		{"Subtitle style", style},
	}
}

func cueSummary(srt string) string {
	if strings.TrimSpace(srt) == "" {
		return "-"
	}
	n := strings.Count(strings.ReplaceAll(srt, "\r\n", "\n"), " --> ")
	return fmt.Sprintf("%d cues", n)
}

func languageLabel(code string) string {
	if code == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", translation.LanguageName(code), code)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func colorLabel(label string) string {
	switch label {
	case "current":
		return text.Colors{text.FgCyan, text.Bold}.Sprint(label)
	case "done":
		return text.FgGreen.Sprint(label)
	case "locked":
		return text.FgHiBlack.Sprint(label)
	default:
		return label
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
