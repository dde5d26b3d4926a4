package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidsub/internal/transcription"
	"vidsub/internal/translation"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "models",
		Short:       "List the selectable whisper and translation models",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, len(transcription.Models))
			for _, m := range transcription.Models {
				rows = append(rows, []string{m.ID, m.DisplayName, m.Size, m.Description})
			}
			fmt.Fprintln(out, "Speech recognition")
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Size", "Notes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))

			rows = rows[:0]
			for _, m := range translation.Models {
				rows = append(rows, []string{m.ID, m.DisplayName, m.Size, m.Source + " → " + m.Target})
			}
			fmt.Fprintln(out, "Translation")
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Size", "Pair"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}
