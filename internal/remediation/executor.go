// Package remediation physically relocates losing and invalid editions into
// the quarantine root, records every move for audit and restore, and cleans
// up the catalog side when configured to.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"deadwax/internal/catalog"
	"deadwax/internal/config"
	"deadwax/internal/dedupe"
	"deadwax/internal/logging"
	"deadwax/internal/services"
	"deadwax/internal/store"
)

// Executor carries out quarantine moves and restores. Callers serialize
// remediation per artist; the executor itself keeps no state.
type Executor struct {
	cfg     *config.Config
	store   *store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// New builds an executor. The catalog handle may be nil, which disables the
// post-move catalog trash regardless of configuration.
func New(cfg *config.Config, st *store.Store, cat *catalog.Catalog, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		cfg:     cfg,
		store:   st,
		catalog: cat,
		logger:  logging.NewComponentLogger(logger, "remediation"),
	}
}

// MoveRequest identifies one edition folder to quarantine.
type MoveRequest struct {
	ScanID    string
	Artist    string
	AlbumID   int64
	Path      string
	SizeBytes int64
	Reason    store.MoveReason
}

// Move relocates a folder into quarantine and records it. A source that no
// longer exists is a no-op, not an error; nothing is recorded for it. The
// move record and the reclaimed-space counters commit together, and a record
// that cannot be written rolls the physical move back.
func (e *Executor) Move(ctx context.Context, req MoveRequest) (*store.Move, error) {
	source := filepath.Clean(req.Path)
	if source == "" || source == "." {
		return nil, services.Wrap(services.ErrValidation, "remediation", "move", "empty source path", nil)
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug("move source already absent",
				logging.String("path", source),
				logging.Int64(logging.FieldAlbumID, req.AlbumID))
			return nil, nil
		}
		return nil, services.Wrap(services.ErrMoveFailed, "remediation", "move",
			fmt.Sprintf("stat source %s", source), err)
	}

	sizeBytes := req.SizeBytes
	if sizeBytes <= 0 {
		sizeBytes = dirSize(source)
	}
	dest, err := nextAvailablePath(e.destinationFor(source))
	if err != nil {
		return nil, services.Wrap(services.ErrMoveFailed, "remediation", "move",
			"allocate quarantine destination", err)
	}
	if err := moveDir(source, dest, sizeBytes); err != nil {
		return nil, services.Wrap(services.ErrMoveFailed, "remediation", "move",
			fmt.Sprintf("relocate %s", source), err)
	}

	mv := store.Move{
		ScanID:     req.ScanID,
		Artist:     req.Artist,
		AlbumID:    req.AlbumID,
		SourcePath: source,
		DestPath:   dest,
		SizeBytes:  sizeBytes,
		Reason:     req.Reason,
		MovedAt:    time.Now(),
	}
	id, err := e.store.RecordMove(ctx, mv)
	if err != nil {
		if undoErr := moveDir(dest, source, sizeBytes); undoErr != nil {
			e.logger.Error("move recorded nowhere and rollback failed, folder stranded in quarantine",
				logging.String("source", source),
				logging.String("dest", dest),
				logging.Error(undoErr))
		}
		return nil, services.Wrap(services.ErrMoveFailed, "remediation", "move",
			"record move", err)
	}
	mv.ID = id
	e.logger.Info("edition quarantined",
		logging.String(logging.FieldArtist, req.Artist),
		logging.Int64(logging.FieldAlbumID, req.AlbumID),
		logging.String("source", source),
		logging.String("dest", dest),
		logging.String("reason", string(req.Reason)),
		logging.Int64("size_bytes", sizeBytes))
	return &mv, nil
}

// Purge quarantines an invalid edition found during a scan.
func (e *Executor) Purge(ctx context.Context, scanID string, ed *dedupe.Edition) (*store.Move, error) {
	return e.Move(ctx, MoveRequest{
		ScanID:    scanID,
		Artist:    ed.Artist,
		AlbumID:   ed.AlbumID,
		Path:      ed.Path,
		SizeBytes: ed.SizeBytes,
		Reason:    store.MoveReasonPurge,
	})
}

// DedupeGroup acts on one persisted duplicate verdict: every loser moves to
// quarantine (losers sharing the winner's folder are catalog-only cleanups),
// then the group row is deleted. A failing loser leaves the group in place
// with the completed moves already recorded.
func (e *Executor) DedupeGroup(ctx context.Context, groupID int64) error {
	group, err := e.store.DuplicateGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return services.Wrap(services.ErrNotFound, "remediation", "dedupe",
			fmt.Sprintf("duplicate group %d", groupID), nil)
	}

	winnerPath := filepath.Clean(group.Winner.Path)
	for _, loser := range group.Losers {
		if filepath.Clean(loser.Path) == winnerPath {
			e.logger.Info("loser shares the winner's folder, catalog cleanup only",
				logging.String(logging.FieldArtist, group.Artist),
				logging.Int64(logging.FieldAlbumID, loser.AlbumID))
			e.trashCatalogEntry(ctx, loser.AlbumID)
			continue
		}
		if _, err := e.Move(ctx, MoveRequest{
			ScanID:    group.ScanID,
			Artist:    group.Artist,
			AlbumID:   loser.AlbumID,
			Path:      loser.Path,
			SizeBytes: loser.SizeBytes,
			Reason:    store.MoveReasonDuplicate,
		}); err != nil {
			return err
		}
		e.trashCatalogEntry(ctx, loser.AlbumID)
	}
	if err := e.store.DeleteDuplicateGroup(ctx, groupID); err != nil {
		return err
	}
	e.logger.Info("duplicate group settled",
		logging.String(logging.FieldArtist, group.Artist),
		logging.String(logging.FieldGroupKey, group.GroupKey),
		logging.Int("losers", len(group.Losers)))
	return nil
}

// DedupeAll resolves every persisted duplicate group. Failures are per
// group: one stuck folder does not stop the rest.
func (e *Executor) DedupeAll(ctx context.Context) (int, error) {
	groups, err := e.store.DuplicateGroups(ctx)
	if err != nil {
		return 0, err
	}
	settled := 0
	var errs []error
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := e.DedupeGroup(ctx, group.ID); err != nil {
			e.logger.Warn("duplicate group remediation failed",
				logging.String(logging.FieldArtist, group.Artist),
				logging.String(logging.FieldGroupKey, group.GroupKey),
				logging.Error(err))
			errs = append(errs, err)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

// Restore moves one quarantined folder back where it came from and flips
// the restored flag. Already-restored rows and rows whose quarantine copy
// has vanished are skipped without error.
func (e *Executor) Restore(ctx context.Context, moveID int64) error {
	mv, err := e.store.MoveByID(ctx, moveID)
	if err != nil {
		return err
	}
	if mv == nil {
		return services.Wrap(services.ErrNotFound, "remediation", "restore",
			fmt.Sprintf("move %d", moveID), nil)
	}
	if mv.Restored {
		return nil
	}
	if _, err := os.Stat(mv.DestPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("quarantine copy missing, nothing to restore",
				logging.Int64("move_id", mv.ID),
				logging.String("dest", mv.DestPath))
			return nil
		}
		return services.Wrap(services.ErrMoveFailed, "remediation", "restore",
			fmt.Sprintf("stat quarantine copy %s", mv.DestPath), err)
	}
	if _, err := os.Stat(mv.SourcePath); err == nil {
		e.logger.Warn("original path occupied again, leaving quarantine copy in place",
			logging.Int64("move_id", mv.ID),
			logging.String("source", mv.SourcePath))
		return nil
	}

	if err := moveDir(mv.DestPath, mv.SourcePath, mv.SizeBytes); err != nil {
		return services.Wrap(services.ErrMoveFailed, "remediation", "restore",
			fmt.Sprintf("restore %s", mv.SourcePath), err)
	}
	if err := e.store.MarkMoveRestored(ctx, mv.ID, time.Now()); err != nil {
		return err
	}
	e.logger.Info("edition restored",
		logging.Int64("move_id", mv.ID),
		logging.String(logging.FieldArtist, mv.Artist),
		logging.String("path", mv.SourcePath))
	return nil
}

// RestoreAll restores every unrestored move, newest first, continuing past
// individual failures.
func (e *Executor) RestoreAll(ctx context.Context) (int, error) {
	moves, err := e.store.Moves(ctx, false)
	if err != nil {
		return 0, err
	}
	restored := 0
	var errs []error
	for _, mv := range moves {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := e.Restore(ctx, mv.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		restored++
	}
	return restored, errors.Join(errs...)
}

// trashCatalogEntry removes the album's catalog rows after a settled move.
// Failures degrade to warnings so a read-only catalog never blocks cleanup.
func (e *Executor) trashCatalogEntry(ctx context.Context, albumID int64) {
	if e.catalog == nil || !e.cfg.Catalog.TrashAfterMove {
		return
	}
	if err := e.catalog.TrashAlbum(ctx, albumID); err != nil {
		e.logger.Warn("catalog trash failed",
			logging.Int64(logging.FieldAlbumID, albumID),
			logging.Error(err))
		return
	}
	e.logger.Debug("catalog entry trashed", logging.Int64(logging.FieldAlbumID, albumID))
}
