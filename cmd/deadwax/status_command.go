package main

import (
	"fmt"
	"io"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"deadwax/internal/config"
	"deadwax/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last scan outcome, lifetime counters, and cache sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				return printStatus(cmd, ctx.configValue(), st)
			})
		},
	}
}

func printStatus(cmd *cobra.Command, cfg *config.Config, st *store.Store) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Last Scan", colorize) {
		fmt.Fprintln(out, line)
	}
	rec, err := st.LatestScan(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(out, renderStatusLine("Status", statusInfo, "no scans recorded yet", colorize))
	} else {
		printScanRecord(out, cfg, rec, colorize)
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Lifetime Totals", colorize) {
		fmt.Fprintln(out, line)
	}
	bytesReclaimed, err := st.Counter(ctx, store.CounterBytesReclaimed)
	if err != nil {
		return err
	}
	editionsMoved, err := st.Counter(ctx, store.CounterEditionsMoved)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderStatusLine("Space reclaimed", statusInfo, formatBytes(bytesReclaimed), colorize))
	fmt.Fprintln(out, renderStatusLine("Editions moved", statusInfo, formatCount(editionsMoved), colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Caches", colorize) {
		fmt.Fprintln(out, line)
	}
	counts, err := st.CacheStats(ctx)
	if err != nil {
		return err
	}
	rows := [][]string{
		{"Release info", formatCount(counts.ReleaseInfo)},
		{"Lookups", formatCount(counts.Lookup)},
		{"Probes", formatCount(counts.Probe)},
		{"AI decisions", formatCount(counts.Decisions)},
	}
	fmt.Fprintln(out, renderTable([]string{"Cache", "Entries"}, rows, []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Environment", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, root := range cfg.Paths.LibraryRoots {
		fmt.Fprintln(out, directoryStatusLine("Library root", root, colorize))
	}
	fmt.Fprintln(out, directoryStatusLine("Quarantine", cfg.Paths.QuarantineDir, colorize))
	fmt.Fprintln(out, directoryStatusLine("State dir", cfg.Paths.StateDir, colorize))
	fmt.Fprintln(out, probeBinaryStatusLine(cfg, colorize))
	fmt.Fprintln(out, catalogStatusLine(ctx, cfg, colorize))
	fmt.Fprintln(out, aiStatusLine(ctx, cfg, colorize))
	return nil
}

func printScanRecord(out io.Writer, cfg *config.Config, rec *store.ScanRecord, colorize bool) {
	kind := scanStatusKind(rec.Status)
	message := string(rec.Status)
	switch {
	case rec.Status == store.ScanStatusRunning && scanLockHeld(cfg):
		message = fmt.Sprintf("running since %s", formatTime(rec.StartedAt))
		kind = statusInfo
	case rec.Status == store.ScanStatusRunning:
		message = "interrupted, no live scan holds the lock"
		kind = statusWarn
	default:
		if d := formatDurationBetween(rec.StartedAt, rec.FinishedAt); d != "-" {
			message += " in " + d
		}
		if rec.ErrorCode != "" {
			message += " (" + rec.ErrorCode + ")"
		}
	}
	fmt.Fprintln(out, renderStatusLine("Status", kind, message, colorize))
	fmt.Fprintln(out, renderStatusLine("Scan ID", statusInfo, shortID(rec.ID), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatTime(rec.StartedAt), colorize))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Finished", statusInfo, formatTime(rec.FinishedAt), colorize))
	}

	totals := rec.Summary
	fmt.Fprintln(out, renderStatusLine("Artists / albums", statusInfo,
		fmt.Sprintf("%d / %d", totals.ArtistsScanned, totals.AlbumsScanned), colorize))
	fmt.Fprintln(out, renderStatusLine("Duplicate groups", statusInfo, formatCount(int64(totals.DuplicateGroups)), colorize))
	fmt.Fprintln(out, renderStatusLine("Broken albums", statusInfo, formatCount(int64(totals.BrokenAlbums)), colorize))
	if totals.EditionsMoved > 0 {
		fmt.Fprintln(out, renderStatusLine("Editions moved", statusInfo,
			fmt.Sprintf("%d (%s)", totals.EditionsMoved, formatBytes(totals.BytesMoved)), colorize))
	}
	if totals.Errors > 0 {
		fmt.Fprintln(out, renderStatusLine("Errors", statusWarn, formatCount(int64(totals.Errors)), colorize))
	}
}

// scanLockHeld probes the scan lock without keeping it. A free lock alongside
// a running history row means the scanning process died mid-run. Probe errors
// count as held so a broken state directory never flags a live scan as dead.
func scanLockHeld(cfg *config.Config) bool {
	lock := flock.New(cfg.LockFilePath())
	ok, err := lock.TryLock()
	if err != nil {
		return true
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
