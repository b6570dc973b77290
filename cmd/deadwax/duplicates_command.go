package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"deadwax/internal/store"
)

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List recorded duplicate groups awaiting remediation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				groups, err := st.DuplicateGroups(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(groups) == 0 {
					fmt.Fprintln(out, "No duplicate groups recorded")
					return nil
				}

				rows := make([][]string, 0, len(groups)*2)
				var reclaimable int64
				for _, group := range groups {
					rows = append(rows, duplicateRow(group.ID, "keep", group.Artist, group.Winner, group.Rationale))
					for _, loser := range group.Losers {
						rows = append(rows, duplicateRow(0, "remove", "", loser, ""))
						reclaimable += loser.SizeBytes
					}
				}
				table := renderTable(
					[]string{"Group", "Verdict", "Artist", "Edition", "Codec", "Year", "Tracks", "Size", "Rationale"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				fmt.Fprintf(out, "%d groups, %s reclaimable (deadwax dedupe --all executes the moves)\n",
					len(groups), formatBytes(reclaimable))
				return nil
			})
		},
	}
}

func duplicateRow(groupID int64, verdict, artist string, ed store.EditionSummary, rationale string) []string {
	id := ""
	if groupID > 0 {
		id = strconv.FormatInt(groupID, 10)
	}
	year := ""
	if ed.Year > 0 {
		year = strconv.Itoa(ed.Year)
	}
	title := ed.Title
	if ed.Broken {
		title += " (broken)"
	}
	return []string{
		id,
		verdict,
		artist,
		truncate(title, 40),
		ed.Codec,
		year,
		strconv.Itoa(ed.TrackCount),
		formatBytes(ed.SizeBytes),
		truncate(rationale, 48),
	}
}
