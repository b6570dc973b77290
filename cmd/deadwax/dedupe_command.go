package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"deadwax/internal/catalog"
	"deadwax/internal/remediation"
	"deadwax/internal/store"
)

func newDedupeCommand(ctx *commandContext) *cobra.Command {
	var groupID int64
	var all bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Quarantine the losing editions of recorded duplicate groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (groupID > 0) == all {
				return errors.New("specify exactly one of --group ID or --all")
			}
			return runDedupe(cmd, ctx, groupID, all, yes)
		},
	}

	cmd.Flags().Int64Var(&groupID, "group", 0, "Duplicate group id to execute")
	cmd.Flags().BoolVar(&all, "all", false, "Execute every recorded duplicate group")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runDedupe(cmd *cobra.Command, cctx *commandContext, groupID int64, all, yes bool) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cctx.newLogger()
	if err != nil {
		return err
	}
	return cctx.withStore(cmd.Context(), func(st *store.Store) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		groups, err := dedupeTargets(ctx, st, groupID, all)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Fprintln(out, "No duplicate groups recorded")
			return nil
		}

		losers := 0
		var reclaimable int64
		for _, group := range groups {
			losers += len(group.Losers)
			for _, loser := range group.Losers {
				reclaimable += loser.SizeBytes
			}
		}
		fmt.Fprintf(out, "About to quarantine %d editions across %d groups (%s)\n",
			losers, len(groups), formatBytes(reclaimable))
		if !yes {
			ok, err := confirm(cmd, "Proceed?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		var cat *catalog.Catalog
		if cfg.Catalog.TrashAfterMove {
			cat, err = catalog.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()
		}
		executor := remediation.New(cfg, st, cat, logger)

		if all {
			settled, err := executor.DedupeAll(ctx)
			fmt.Fprintf(out, "Settled %d of %d groups\n", settled, len(groups))
			return err
		}
		if err := executor.DedupeGroup(ctx, groupID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Group %d settled\n", groupID)
		return nil
	})
}

func dedupeTargets(ctx context.Context, st *store.Store, groupID int64, all bool) ([]store.DuplicateGroup, error) {
	if all {
		return st.DuplicateGroups(ctx)
	}
	group, err := st.DuplicateGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("duplicate group %d not found", groupID)
	}
	return []store.DuplicateGroup{*group}, nil
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
