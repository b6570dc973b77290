package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"deadwax/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set catalog.db_path and the library roots before scanning.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file location",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var override string
			if ctx.configFlag != nil {
				override = strings.TrimSpace(*ctx.configFlag)
			}
			resolved, exists, err := config.ResolvePath(override)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintln(out, resolved)
				return nil
			}
			fmt.Fprintf(out, "%s (not found, run `deadwax config init` to create it)\n", resolved)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "[paths]")
	fmt.Fprintf(out, "  library_roots    = %s\n", strings.Join(cfg.Paths.LibraryRoots, ", "))
	fmt.Fprintf(out, "  quarantine_dir   = %s\n", cfg.Paths.QuarantineDir)
	fmt.Fprintf(out, "  state_dir        = %s\n", cfg.Paths.StateDir)
	fmt.Fprintf(out, "  log_dir          = %s\n", cfg.Paths.LogDir)

	fmt.Fprintln(out, "\n[catalog]")
	fmt.Fprintf(out, "  db_path          = %s\n", cfg.Catalog.DBPath)
	fmt.Fprintf(out, "  trash_after_move = %s\n", yesNo(cfg.Catalog.TrashAfterMove))
	if len(cfg.Catalog.PathMappings) > 0 {
		fmt.Fprintln(out, "  path_mappings:")
		for _, m := range cfg.Catalog.PathMappings {
			fmt.Fprintf(out, "    %s => %s\n", m.From, m.To)
		}
	}

	fmt.Fprintln(out, "\n[probe]")
	fmt.Fprintf(out, "  binary           = %s\n", cfg.Probe.Binary)
	fmt.Fprintf(out, "  workers          = %d\n", cfg.Probe.Workers)
	fmt.Fprintf(out, "  timeout_seconds  = %d\n", cfg.Probe.TimeoutSeconds)
	fmt.Fprintf(out, "  sample_files     = %d\n", cfg.Probe.SampleFiles)

	fmt.Fprintln(out, "\n[scan]")
	fmt.Fprintf(out, "  workers          = %d\n", cfg.Scan.Workers)
	fmt.Fprintf(out, "  ai_workers       = %d\n", cfg.Scan.AIWorkers)
	fmt.Fprintf(out, "  gap_threshold    = %d\n", cfg.Scan.GapThreshold)
	fmt.Fprintf(out, "  missing_track_pct = %.2f\n", cfg.Scan.MissingTrackPct)
	fmt.Fprintf(out, "  max_consecutive_empty_artists = %d\n", cfg.Scan.MaxConsecutiveEmptyArtists)

	fmt.Fprintln(out, "\n[resolve]")
	fmt.Fprintf(out, "  base_url         = %s\n", cfg.Resolve.BaseURL)
	fmt.Fprintf(out, "  user_agent       = %s\n", cfg.Resolve.UserAgent)
	fmt.Fprintf(out, "  rate_interval_ms = %d\n", cfg.Resolve.RateIntervalMS)

	fmt.Fprintln(out, "\n[ai]")
	fmt.Fprintf(out, "  configured       = %s\n", yesNo(cfg.AIEnabled()))
	fmt.Fprintf(out, "  model            = %s\n", cfg.AI.Model)
	fmt.Fprintf(out, "  base_url         = %s\n", cfg.AI.BaseURL)

	fmt.Fprintln(out, "\n[websearch]")
	fmt.Fprintf(out, "  enabled          = %s\n", yesNo(cfg.WebSearch.Enabled))

	fmt.Fprintln(out, "\n[providers]")
	fmt.Fprintf(out, "  discogs          = %s\n", yesNo(cfg.Providers.Discogs.Enabled))
	fmt.Fprintf(out, "  lastfm           = %s\n", yesNo(cfg.Providers.LastFM.Enabled))
	fmt.Fprintf(out, "  bandcamp         = %s\n", yesNo(cfg.Providers.Bandcamp.Enabled))

	fmt.Fprintln(out, "\n[notifications]")
	fmt.Fprintf(out, "  webhook          = %s\n", yesNo(strings.TrimSpace(cfg.Notifications.WebhookURL) != ""))
	fmt.Fprintf(out, "  scan_complete    = %s\n", yesNo(cfg.Notifications.ScanComplete))
	fmt.Fprintf(out, "  errors           = %s\n", yesNo(cfg.Notifications.Errors))

	fmt.Fprintln(out, "\n[logging]")
	fmt.Fprintf(out, "  format           = %s\n", cfg.Logging.Format)
	fmt.Fprintf(out, "  level            = %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  retention_days   = %d\n", cfg.Logging.RetentionDays)

	fmt.Fprintln(out, "\n[history]")
	fmt.Fprintf(out, "  keep_runs        = %d\n", cfg.History.KeepRuns)
}
