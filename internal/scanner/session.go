package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"deadwax/internal/probe"
	"deadwax/internal/resolve"
	"deadwax/internal/store"
)

// pausePollInterval is how often a paused worker rechecks the pause flag.
const pausePollInterval = 500 * time.Millisecond

// errScanStopped aborts worker loops after an operator stop request. It is
// not an error condition; finalize maps it to the stopped status.
var errScanStopped = errors.New("scan stopped")

// Stage names the phase a scan is currently in.
type Stage string

const (
	StageIdle       Stage = "idle"
	StagePreflight  Stage = "preflight"
	StageScanning   Stage = "scanning"
	StageAIBatch    Stage = "ai-batch"
	StageFinalizing Stage = "finalizing"
)

// Snapshot is a point-in-time view of a running scan for the progress
// surface. Cache tallies come straight from the prober and resolver counters.
type Snapshot struct {
	ScanID    string
	Stage     Stage
	Running   bool
	Paused    bool
	StartedAt time.Time

	ArtistsTotal    int
	ArtistsDone     int
	AlbumsScanned   int
	CurrentAlbums   map[string]string
	DuplicateGroups int
	PendingGroups   int
	BrokenAlbums    int
	EditionsMoved   int
	BytesMoved      int64
	Errors          int

	Probe   probe.Stats
	Resolve resolve.Stats
	Queue   resolve.QueueStats
}

// Session is the live state of one scan run. One mutex guards all counters;
// critical sections only read or bump fields, never block.
type Session struct {
	id        string
	startedAt time.Time

	prober   *probe.Prober
	resolver *resolve.Resolver

	mu            sync.Mutex
	stage         Stage
	paused        bool
	stopped       bool
	artistsTotal  int
	artistsDone   int
	albumsScanned int
	current       map[string]string
	groups        int
	pending       int
	broken        int
	moved         int
	movedBytes    int64
	errors        int
}

func newSession(id string) *Session {
	return &Session{
		id:        id,
		startedAt: time.Now(),
		stage:     StagePreflight,
		current:   make(map[string]string),
	}
}

// attach wires the stat sources into the session before any worker starts.
func (s *Session) attach(prober *probe.Prober, resolver *resolve.Resolver) {
	s.mu.Lock()
	s.prober = prober
	s.resolver = resolver
	s.mu.Unlock()
}

// CheckpointAlbum is the cooperative pause/stop gate called before each
// album. While paused it busy-waits on a coarse poll; a stop request or
// context cancellation ends the wait.
func (s *Session) CheckpointAlbum(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		stopped, paused := s.stopped, s.paused
		s.mu.Unlock()
		if stopped {
			return errScanStopped
		}
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
	}
}

func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

func (s *Session) setPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// RequestStop flags the scan for cooperative shutdown.
func (s *Session) RequestStop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// StopRequested reports whether an operator asked the scan to stop.
func (s *Session) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) setTotals(artists int) {
	s.mu.Lock()
	s.artistsTotal = artists
	s.mu.Unlock()
}

func (s *Session) startAlbum(artist, album string) {
	s.mu.Lock()
	s.current[artist] = album
	s.mu.Unlock()
}

func (s *Session) albumScanned() {
	s.mu.Lock()
	s.albumsScanned++
	s.mu.Unlock()
}

func (s *Session) finishArtist(artist string) {
	s.mu.Lock()
	delete(s.current, artist)
	s.artistsDone++
	s.mu.Unlock()
}

func (s *Session) addError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Session) addMove(sizeBytes int64) {
	s.mu.Lock()
	s.moved++
	s.movedBytes += sizeBytes
	s.mu.Unlock()
}

func (s *Session) addGroups(n int) {
	s.mu.Lock()
	s.groups += n
	s.mu.Unlock()
}

func (s *Session) addPending(n int) {
	s.mu.Lock()
	s.pending += n
	s.mu.Unlock()
}

func (s *Session) settlePending() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

func (s *Session) addBroken(n int) {
	s.mu.Lock()
	s.broken += n
	s.mu.Unlock()
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ScanID:          s.id,
		Stage:           s.stage,
		Running:         true,
		Paused:          s.paused,
		StartedAt:       s.startedAt,
		ArtistsTotal:    s.artistsTotal,
		ArtistsDone:     s.artistsDone,
		AlbumsScanned:   s.albumsScanned,
		CurrentAlbums:   make(map[string]string, len(s.current)),
		DuplicateGroups: s.groups,
		PendingGroups:   s.pending,
		BrokenAlbums:    s.broken,
		EditionsMoved:   s.moved,
		BytesMoved:      s.movedBytes,
		Errors:          s.errors,
	}
	for artist, album := range s.current {
		snap.CurrentAlbums[artist] = album
	}
	prober, resolver := s.prober, s.resolver
	s.mu.Unlock()

	if prober != nil {
		snap.Probe = prober.Stats()
	}
	if resolver != nil {
		snap.Resolve = resolver.Stats()
		snap.Queue = resolver.QueueStats()
	}
	return snap
}

func (s *Session) summaryTotals() store.ScanSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.ScanSummary{
		ArtistsScanned:  s.artistsDone,
		AlbumsScanned:   s.albumsScanned,
		DuplicateGroups: s.groups,
		BrokenAlbums:    s.broken,
		EditionsMoved:   s.moved,
		BytesMoved:      s.movedBytes,
		Errors:          s.errors,
	}
}
