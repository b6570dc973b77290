package services

import "context"

type contextKey string

const (
	scanIDKey    contextKey = "scan_id"
	artistKey    contextKey = "artist"
	requestIDKey contextKey = "request_id"
)

// WithScanID annotates context with the active scan identifier.
func WithScanID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, scanIDKey, id)
}

// ScanIDFromContext extracts the scan identifier if present.
func ScanIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scanIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithArtist annotates context with the artist currently being processed.
func WithArtist(ctx context.Context, artist string) context.Context {
	if artist == "" {
		return ctx
	}
	return context.WithValue(ctx, artistKey, artist)
}

// ArtistFromContext returns the artist name if present.
func ArtistFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(artistKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
