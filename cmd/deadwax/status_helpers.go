package main

import (
	"context"
	"fmt"

	"deadwax/internal/config"
	"deadwax/internal/preflight"
)

func directoryStatusLine(label, path string, colorize bool) string {
	result := preflight.CheckDirectoryAccess(label, path)
	if result.Passed {
		return renderStatusLine(label, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(label, statusError, result.Detail, colorize)
}

func probeBinaryStatusLine(cfg *config.Config, colorize bool) string {
	result := preflight.CheckProbeBinary(cfg.Probe.Binary)
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusError, result.Detail, colorize)
}

func catalogStatusLine(ctx context.Context, cfg *config.Config, colorize bool) string {
	result := preflight.CheckCatalog(ctx, cfg.Catalog.DBPath)
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusError, result.Detail, colorize)
}

// aiStatusLine reports AI reachability. An unconfigured model is informational
// rather than a failure; scans fall back to heuristic winner selection.
func aiStatusLine(ctx context.Context, cfg *config.Config, colorize bool) string {
	const label = "AI model"
	if !cfg.AIEnabled() {
		return renderStatusLine(label, statusInfo, "not configured", colorize)
	}
	result := preflight.CheckAI(ctx, cfg.AI)
	if result.Passed {
		return renderStatusLine(label, statusOK, fmt.Sprintf("%s (%s)", cfg.AI.Model, result.Detail), colorize)
	}
	return renderStatusLine(label, statusWarn, result.Detail, colorize)
}
