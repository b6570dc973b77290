package store

import "time"

// ScanStatus is the terminal state recorded for a scan run.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusStopped   ScanStatus = "stopped"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanSummary aggregates the outcome of one scan run. It is persisted as a
// JSON blob alongside the history row.
type ScanSummary struct {
	ArtistsScanned  int   `json:"artists_scanned"`
	AlbumsScanned   int   `json:"albums_scanned"`
	DuplicateGroups int   `json:"duplicate_groups"`
	BrokenAlbums    int   `json:"broken_albums"`
	EditionsMoved   int   `json:"editions_moved"`
	BytesMoved      int64 `json:"bytes_moved"`
	Errors          int   `json:"errors"`
}

// ScanRecord is one row of scan history. FinishedAt is zero while the scan is
// still running.
type ScanRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     ScanStatus
	ErrorCode  string
	Summary    ScanSummary
}

// EditionSummary captures the edition fields the CLI and remediation need
// after grouping has finished. AlbumID refers to the library catalog.
type EditionSummary struct {
	AlbumID    int64
	Title      string
	Path       string
	Codec      string
	SizeBytes  int64
	TrackCount int
	Year       int
	Broken     bool
}

// DuplicateGroup is a persisted grouping verdict: one winner plus the losing
// editions that remediation may quarantine.
type DuplicateGroup struct {
	ID             int64
	ScanID         string
	Artist         string
	GroupKey       string
	Winner         EditionSummary
	Losers         []EditionSummary
	Rationale      string
	ExtraTracks    []string
	ReleaseGroupID string
	CreatedAt      time.Time
}

// TrackGap describes one hole in an album's track numbering.
type TrackGap struct {
	After   int `json:"after"`
	Missing int `json:"missing"`
}

// BrokenAlbum records an edition whose track list has holes large enough to
// disqualify it from keeping duplicates away.
type BrokenAlbum struct {
	Artist         string
	AlbumID        int64
	Title          string
	Path           string
	ExpectedTracks int
	ActualTracks   int
	Gaps           []TrackGap
	DetectedAt     time.Time
}

// MoveReason distinguishes why an edition left the library.
type MoveReason string

const (
	MoveReasonDuplicate MoveReason = "duplicate"
	MoveReasonPurge     MoveReason = "purge"
)

// Move records a quarantine relocation so it can be reversed later.
// RestoredAt is zero until the move has been undone.
type Move struct {
	ID         int64
	ScanID     string
	Artist     string
	AlbumID    int64
	SourcePath string
	DestPath   string
	SizeBytes  int64
	Reason     MoveReason
	MovedAt    time.Time
	Restored   bool
	RestoredAt time.Time
}

// LookupStatus tags the outcome of a lookup-cache read so callers can tell a
// cold cache apart from a remembered failure.
type LookupStatus int

const (
	// LookupMiss means the pair has never been resolved.
	LookupMiss LookupStatus = iota
	// LookupHit carries a cached release group id.
	LookupHit
	// LookupNotFound marks a pair that resolution already failed on.
	LookupNotFound
)

// LookupResult is the tagged value returned by Lookup.
type LookupResult struct {
	Status         LookupStatus
	ReleaseGroupID string
}

// ProbeRecord caches the technical readout for one file at one mtime.
// Valid is false when probing settled on the file being unreadable.
type ProbeRecord struct {
	Path         string
	MtimeUnix    int64
	Codec        string
	BitrateKbps  int
	SampleRateHz int
	BitDepth     int
	Valid        bool
}

// Decision is a cached edition-selection verdict keyed by the artist and the
// exact set of candidate album ids.
type Decision struct {
	Key           string
	Artist        string
	AlbumIDs      []int64
	WinnerAlbumID int64
	Rationale     string
	ExtraTracks   []string
	DecidedAt     time.Time
}

// CacheCounts reports row counts per cache table for the status surface.
type CacheCounts struct {
	ReleaseInfo int64
	Lookup      int64
	Probe       int64
	Decisions   int64
}

// Counter keys tracked in the settings table.
const (
	CounterBytesReclaimed = "counter_bytes_reclaimed"
	CounterEditionsMoved  = "counter_editions_moved"
)
