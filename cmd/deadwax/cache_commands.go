package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deadwax/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the metadata caches",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				counts, err := st.CacheStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Release info", formatCount(counts.ReleaseInfo)},
					{"Lookups", formatCount(counts.Lookup)},
					{"Probes", formatCount(counts.Probe)},
					{"AI decisions", formatCount(counts.Decisions)},
				}
				table := renderTable([]string{"Cache", "Entries"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var clearLookup bool
	var clearRelease bool
	var clearProbe bool
	var clearDecisions bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached metadata so the next scan refetches it",
		Long:  "Without flags every cache is cleared, including remembered AI decisions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := []struct {
				selected bool
				kind     store.CacheKind
				label    string
			}{
				{clearLookup, store.CacheLookup, "lookup"},
				{clearRelease, store.CacheReleaseInfo, "release info"},
				{clearProbe, store.CacheProbe, "probe"},
				{clearDecisions, store.CacheDecisions, "decision"},
			}
			anySelected := false
			for _, target := range targets {
				if target.selected {
					anySelected = true
					break
				}
			}

			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				out := cmd.OutOrStdout()
				for _, target := range targets {
					if anySelected && !target.selected {
						continue
					}
					removed, err := st.ClearCache(cmd.Context(), target.kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d %s rows\n", removed, target.label)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearLookup, "lookup", false, "Clear the artist+album lookup cache")
	cmd.Flags().BoolVar(&clearRelease, "release", false, "Clear the release info cache")
	cmd.Flags().BoolVar(&clearProbe, "probe", false, "Clear the technical probe cache")
	cmd.Flags().BoolVar(&clearDecisions, "decisions", false, "Clear the AI decision cache")
	return cmd
}
