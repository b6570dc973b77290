package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"deadwax/internal/remediation"
	"deadwax/internal/store"
)

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var moveID int64
	var all bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Move quarantined editions back into the library",
		Long: "Without flags, lists the unrestored quarantine moves. " +
			"--move ID restores one; --all restores everything still in quarantine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if moveID > 0 && all {
				return errors.New("specify only one of --move ID or --all")
			}
			if moveID == 0 && !all {
				return ctx.withStore(cmd.Context(), func(st *store.Store) error {
					return printMoves(cmd, st)
				})
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				executor := remediation.New(cfg, st, nil, logger)
				out := cmd.OutOrStdout()
				if all {
					restored, err := executor.RestoreAll(cmd.Context())
					fmt.Fprintf(out, "Restored %d moves\n", restored)
					return err
				}
				if err := executor.Restore(cmd.Context(), moveID); err != nil {
					return err
				}
				fmt.Fprintf(out, "Move %d restored\n", moveID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&moveID, "move", 0, "Move id to restore")
	cmd.Flags().BoolVar(&all, "all", false, "Restore every unrestored move")
	return cmd
}

func printMoves(cmd *cobra.Command, st *store.Store) error {
	moves, err := st.Moves(cmd.Context(), false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(moves) == 0 {
		fmt.Fprintln(out, "Quarantine is empty")
		return nil
	}
	rows := make([][]string, 0, len(moves))
	for _, mv := range moves {
		rows = append(rows, []string{
			strconv.FormatInt(mv.ID, 10),
			mv.Artist,
			string(mv.Reason),
			formatBytes(mv.SizeBytes),
			formatTime(mv.MovedAt),
			mv.SourcePath,
		})
	}
	table := renderTable(
		[]string{"Move", "Artist", "Reason", "Size", "Moved", "Original Path"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
	fmt.Fprintln(out, table)
	fmt.Fprintln(out, "deadwax restore --move ID puts one back; --all restores everything")
	return nil
}
