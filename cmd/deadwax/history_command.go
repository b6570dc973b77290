package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"deadwax/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past scan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				records, err := st.ScanHistory(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No scans recorded yet")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					totals := rec.Summary
					rows = append(rows, []string{
						shortID(rec.ID),
						string(rec.Status),
						formatTime(rec.StartedAt),
						formatDurationBetween(rec.StartedAt, rec.FinishedAt),
						strconv.Itoa(totals.ArtistsScanned),
						strconv.Itoa(totals.AlbumsScanned),
						strconv.Itoa(totals.DuplicateGroups),
						strconv.Itoa(totals.BrokenAlbums),
						strconv.Itoa(totals.EditionsMoved),
						strconv.Itoa(totals.Errors),
						rec.ErrorCode,
					})
				}
				table := renderTable(
					[]string{"Scan", "Status", "Started", "Duration", "Artists", "Albums", "Groups", "Broken", "Moved", "Errors", "Code"},
					rows,
					[]columnAlignment{
						alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight,
						alignRight, alignRight, alignRight, alignRight, alignLeft,
					},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")
	return cmd
}
