package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deadwax/internal/logging"
	"deadwax/internal/scanner"
	"deadwax/internal/store"
)

const progressInterval = 500 * time.Millisecond

func newScanCommand(ctx *commandContext) *cobra.Command {
	var artist string
	var forceRefresh bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the library for duplicate and broken editions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, ctx, scanner.Options{Artist: artist, ForceRefresh: forceRefresh})
		},
	}

	cmd.Flags().StringVar(&artist, "artist", "", "Limit the scan to one artist")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Clear metadata lookup caches before scanning")
	return cmd
}

func runScan(cmd *cobra.Command, cctx *commandContext, opts scanner.Options) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cctx.newLogger()
	if err != nil {
		return err
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "deadwax*.log", cfg.LogFilePath(), cfg.Logging.RetentionDays)

	st, err := store.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := scanner.New(cfg, st, logger, nil)
	scanID, err := mgr.StartScan(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scan %s started", shortID(scanID))
	if opts.Artist != "" {
		fmt.Fprintf(out, " (artist %q)", opts.Artist)
	}
	fmt.Fprintln(out)
	if path := cfg.LogFilePath(); path != "" {
		fmt.Fprintf(out, "Logging to %s\n", path)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	doneCh := make(chan scanner.Summary, 1)
	go func() { doneCh <- mgr.Wait() }()

	line := newProgressLine(out)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var summary scanner.Summary
wait:
	for {
		select {
		case summary = <-doneCh:
			break wait
		case <-sigCh:
			line.clear()
			fmt.Fprintln(out, "Stop requested, letting in-flight albums finish")
			if err := mgr.StopScan(); err != nil {
				logger.Debug("stop after signal", logging.Error(err))
			}
		case <-ticker.C:
			line.update(renderProgress(mgr.Progress()))
		}
	}
	line.clear()

	printScanSummary(out, summary)
	if summary.Status == store.ScanStatusFailed {
		return fmt.Errorf("scan failed: %s", summary.ErrorCode)
	}
	return nil
}

func renderProgress(snap scanner.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", snap.Stage)
	if snap.Paused {
		b.WriteString(" paused")
	}
	fmt.Fprintf(&b, " artists %d/%d", snap.ArtistsDone, snap.ArtistsTotal)
	fmt.Fprintf(&b, "  albums %d", snap.AlbumsScanned)
	fmt.Fprintf(&b, "  groups %d", snap.DuplicateGroups)
	if snap.PendingGroups > 0 {
		fmt.Fprintf(&b, " (+%d pending)", snap.PendingGroups)
	}
	fmt.Fprintf(&b, "  broken %d", snap.BrokenAlbums)
	if snap.EditionsMoved > 0 {
		fmt.Fprintf(&b, "  moved %d (%s)", snap.EditionsMoved, formatBytes(snap.BytesMoved))
	}
	if snap.Errors > 0 {
		fmt.Fprintf(&b, "  errors %d", snap.Errors)
	}
	return b.String()
}

func printScanSummary(out io.Writer, sum scanner.Summary) {
	colorize := shouldColorize(out)
	message := string(sum.Status)
	if d := formatDurationBetween(sum.StartedAt, sum.FinishedAt); d != "-" {
		message += " in " + d
	}
	if sum.ErrorCode != "" {
		message += " (" + sum.ErrorCode + ")"
	}
	fmt.Fprintln(out, renderStatusLine("Scan "+shortID(sum.ScanID), scanStatusKind(sum.Status), message, colorize))

	totals := sum.Totals
	rows := [][]string{
		{"Artists scanned", formatCount(int64(totals.ArtistsScanned))},
		{"Albums scanned", formatCount(int64(totals.AlbumsScanned))},
		{"Duplicate groups", formatCount(int64(totals.DuplicateGroups))},
		{"Broken albums", formatCount(int64(totals.BrokenAlbums))},
		{"Editions moved", formatCount(int64(totals.EditionsMoved))},
		{"Space reclaimed", formatBytes(totals.BytesMoved)},
		{"Errors", formatCount(int64(totals.Errors))},
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// progressLine redraws one terminal line in place. On non-terminal writers it
// stays silent so piped output only carries the final summary.
type progressLine struct {
	out   io.Writer
	live  bool
	width int
}

func newProgressLine(out io.Writer) *progressLine {
	return &progressLine{out: out, live: shouldColorize(out)}
}

func (p *progressLine) update(text string) {
	if !p.live {
		return
	}
	pad := ""
	if p.width > len(text) {
		pad = strings.Repeat(" ", p.width-len(text))
	}
	fmt.Fprintf(p.out, "\r%s%s", text, pad)
	p.width = len(text)
}

func (p *progressLine) clear() {
	if !p.live || p.width == 0 {
		return
	}
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.width))
	p.width = 0
}
