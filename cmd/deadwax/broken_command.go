package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"deadwax/internal/store"
)

func newBrokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "broken",
		Short: "List albums with missing tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				records, err := st.BrokenAlbums(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No broken albums recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.Artist,
						truncate(rec.Title, 40),
						fmt.Sprintf("%d/%d", rec.ActualTracks, rec.ExpectedTracks),
						formatGaps(rec.Gaps),
						rec.Path,
					})
				}
				table := renderTable(
					[]string{"Artist", "Album", "Tracks", "Gaps", "Path"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func formatGaps(gaps []store.TrackGap) string {
	if len(gaps) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(gaps))
	for _, gap := range gaps {
		parts = append(parts, fmt.Sprintf("%d after #%d", gap.Missing, gap.After))
	}
	return strings.Join(parts, ", ")
}
