package logging

import (
	"context"
	"log/slog"

	"deadwax/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldScanID is the standardized structured logging key for scan run identifiers.
	FieldScanID = "scan_id"
	// FieldArtist is the standardized structured logging key for artist names.
	FieldArtist = "artist"
	// FieldAlbum is the standardized structured logging key for album titles.
	FieldAlbum = "album"
	// FieldAlbumID is the standardized structured logging key for catalog album identifiers.
	FieldAlbumID = "album_id"
	// FieldGroupKey is the standardized structured logging key for duplicate group keys.
	FieldGroupKey = "group_key"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags machine-readable event names on WARN/ERROR lines.
	FieldEventType = "event_type"
	// FieldErrorCode carries the user-visible failure code.
	FieldErrorCode = "error_code"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.ScanIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldScanID, id))
	}
	if artist, ok := services.ArtistFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldArtist, artist))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
