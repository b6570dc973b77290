package scanner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"deadwax/internal/catalog"
	"deadwax/internal/dedupe"
	"deadwax/internal/logging"
	"deadwax/internal/notifications"
	"deadwax/internal/probe"
	"deadwax/internal/remediation"
	"deadwax/internal/resolve"
	"deadwax/internal/selector"
	"deadwax/internal/services"
	"deadwax/internal/services/llm"
	"deadwax/internal/services/musicbrainz"
	"deadwax/internal/services/websearch"
	"deadwax/internal/store"
)

const (
	preflightSampleLimit = 20
	aiHealthTimeout      = 15 * time.Second
	finalizeTimeout      = 30 * time.Second
)

// pendingArtist holds an artist whose duplicate groups could not all settle
// inline and must wait for the AI batch phase.
type pendingArtist struct {
	artist  string
	settled []store.DuplicateGroup
	pending []dedupe.CandidateGroup
}

// run is the scan pipeline. It owns the catalog handle and the resolve queue
// and releases both in finalize, which executes on every exit path.
func (m *Manager) run(ctx context.Context, cat *catalog.Catalog, session *Session, opts Options) {
	ctx = services.WithScanID(ctx, session.id)
	var (
		status  = store.ScanStatusCompleted
		code    services.Code
		breaker bool
	)
	queue := resolve.NewQueue(m.cfg, m.logger)
	defer func() {
		if r := recover(); r != nil {
			status = store.ScanStatusFailed
			code = services.CodeInternal
			m.logger.Error("scan panicked",
				logging.String(logging.FieldScanID, session.id),
				logging.String("panic", fmt.Sprint(r)))
		}
		m.finalize(session, cat, queue, status, code, breaker)
	}()

	if opts.ForceRefresh {
		for _, kind := range []store.CacheKind{store.CacheLookup, store.CacheReleaseInfo} {
			cleared, err := m.store.ClearCache(ctx, kind)
			if err != nil {
				m.logger.Warn("cache refresh failed",
					logging.String("cache", string(kind)),
					logging.Error(err))
				continue
			}
			m.logger.Info("cache cleared for refresh",
				logging.String("cache", string(kind)),
				logging.Int64("entries", cleared))
		}
	}

	prober := probe.New(m.cfg, m.store, m.logger)
	if m.ProbeRetryDelay > 0 {
		prober.RetryDelay = m.ProbeRetryDelay
	}
	prober.ResetStats()

	mb, err := musicbrainz.New(m.cfg.Resolve.BaseURL, m.cfg.Resolve.CoverArtBaseURL, m.cfg.Resolve.UserAgent)
	if err != nil {
		status = store.ScanStatusFailed
		code = services.ClassifyCode(err)
		m.logger.Error("metadata catalog client unavailable", logging.Error(err))
		return
	}

	ai := m.healthyAIClient(ctx)
	ropts := []resolve.Option{
		resolve.WithProviders(resolve.BuildProviders(m.cfg, m.cfg.Resolve.UserAgent, m.logger)...),
	}
	if ai != nil {
		ropts = append(ropts, resolve.WithAI(ai))
		if m.cfg.WebSearch.Enabled {
			web, err := websearch.New(m.cfg.WebSearch.BaseURL, time.Duration(m.cfg.WebSearch.TimeoutSeconds)*time.Second)
			if err != nil {
				m.logger.Warn("web search disabled", logging.Error(err))
			} else {
				ropts = append(ropts, resolve.WithWebSearch(web))
			}
		}
	}
	resolver := resolve.NewResolver(queue, m.store, mb, m.logger, ropts...)
	session.attach(prober, resolver)

	if err := m.preflight(ctx, cat); err != nil {
		status = store.ScanStatusFailed
		code = services.ClassifyCode(err)
		m.logger.Error("path binding preflight failed", logging.Error(err))
		m.notify(ctx, notifications.EventError, notifications.Payload{
			"context": "scan preflight",
			"error":   err.Error(),
		})
		return
	}

	groups, err := m.artistGroups(ctx, cat, opts)
	if err != nil {
		status = store.ScanStatusFailed
		code = services.ClassifyCode(err)
		m.logger.Error("artist listing failed", logging.Error(err))
		return
	}
	session.setTotals(len(groups))
	m.notify(ctx, notifications.EventScanStarted, notifications.Payload{
		"artists": fmt.Sprintf("%d", len(groups)),
	})

	session.setStage(StageScanning)
	worker := &artistScanner{
		cfg:      m.cfg,
		store:    m.store,
		catalog:  cat,
		prober:   prober,
		resolver: resolver,
		engine:   dedupe.NewEngine(m.cfg, m.logger),
		inline:   selector.New(m.store, nil, m.logger),
		executor: remediation.New(m.cfg, m.store, cat, m.logger),
		session:  session,
		logger:   m.logger,
	}

	pendings, tripped := m.scanArtists(ctx, session, worker, groups)
	if tripped {
		status = store.ScanStatusFailed
		code = services.CodeNoFilesFound
		breaker = true
		m.recordPendingSettled(session, pendings)
		return
	}
	if session.StopRequested() || ctx.Err() != nil {
		status = store.ScanStatusStopped
		m.recordPendingSettled(session, pendings)
		return
	}

	if len(pendings) > 0 {
		session.setStage(StageAIBatch)
		m.runAIBatch(ctx, session, pendings, ai)
		if session.StopRequested() || ctx.Err() != nil {
			status = store.ScanStatusStopped
		}
	}
}

// scanArtists fans the merged artists across the worker pool and collects
// outcomes in completion order, feeding the circuit breaker. Returns the
// artists still carrying pending groups and whether the breaker tripped.
func (m *Manager) scanArtists(ctx context.Context, session *Session, worker *artistScanner, groups []dedupe.ArtistGroup) ([]pendingArtist, bool) {
	workers := m.cfg.Scan.Workers
	if workers <= 0 {
		workers = 1
	}
	threshold := m.cfg.Scan.MaxConsecutiveEmptyArtists
	if threshold <= 0 {
		threshold = 10
	}

	jobs := make(chan dedupe.ArtistGroup)
	results := make(chan artistOutcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				results <- worker.scanArtist(ctx, group)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(jobs)
		for _, group := range groups {
			select {
			case jobs <- group:
			case <-ctx.Done():
				return
			}
		}
	}()

	persistCtx := context.Background()
	streak := 0
	tripped := false
	var pendings []pendingArtist
	for outcome := range results {
		session.finishArtist(outcome.artist)
		if outcome.err != nil {
			if ctx.Err() == nil && !session.StopRequested() {
				session.addError()
				m.logger.Warn("artist scan failed",
					logging.String(logging.FieldArtist, outcome.artist),
					logging.Error(outcome.err))
			}
			continue
		}

		if outcome.validEditions == 0 {
			streak++
		} else {
			streak = 0
		}

		if len(outcome.pending) > 0 {
			pendings = append(pendings, pendingArtist{
				artist:  outcome.artist,
				settled: outcome.settled,
				pending: outcome.pending,
			})
			session.addPending(len(outcome.pending))
		} else if err := m.store.ReplaceArtistGroups(persistCtx, session.id, outcome.artist, outcome.settled); err != nil {
			session.addError()
			m.logger.Warn("persist duplicate groups failed",
				logging.String(logging.FieldArtist, outcome.artist),
				logging.Error(err))
		} else {
			session.addGroups(len(outcome.settled))
		}

		if !tripped && streak >= threshold {
			tripped = true
			logging.ErrorWithContext(m.logger, "circuit breaker tripped, aborting scan", "breaker_tripped",
				logging.String(logging.FieldScanID, session.id),
				logging.Int("consecutive_empty", streak),
				logging.String("last_artist", outcome.artist),
				logging.String(logging.FieldErrorHint, "library roots may be empty or unreadable, check library_roots and remount before rescanning"),
				logging.Alert("breaker_tripped"))
			m.notify(persistCtx, notifications.EventBreakerTripped, notifications.Payload{
				"count":  fmt.Sprintf("%d", streak),
				"artist": outcome.artist,
			})
			m.cancelScan()
		}
	}
	return pendings, tripped
}

// runAIBatch drains pending groups through the AI concurrency budget and
// records each artist's full group set once every member has settled. With
// no usable AI client the groups are skipped, never guessed.
func (m *Manager) runAIBatch(ctx context.Context, session *Session, pendings []pendingArtist, ai *llm.Client) {
	workers := m.cfg.Scan.AIWorkers
	if workers <= 0 {
		workers = 1
	}
	batch := selector.New(m.store, ai, m.logger)

	type job struct {
		artist string
		group  dedupe.CandidateGroup
	}
	type verdict struct {
		artist string
		record store.DuplicateGroup
		ok     bool
	}

	jobs := make(chan job)
	verdicts := make(chan verdict)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				dec, err := batch.ChooseBest(ctx, j.group)
				if err != nil {
					if ctx.Err() == nil && !session.StopRequested() {
						if ai == nil {
							m.logger.Info("duplicate group needs ai selection, skipped",
								logging.String(logging.FieldArtist, j.artist),
								logging.String(logging.FieldGroupKey, j.group.Key))
						} else {
							session.addError()
							m.logger.Warn("ai selection failed, group skipped",
								logging.String(logging.FieldArtist, j.artist),
								logging.String(logging.FieldGroupKey, j.group.Key),
								logging.Error(err))
						}
					}
					verdicts <- verdict{artist: j.artist}
					continue
				}
				verdicts <- verdict{
					artist: j.artist,
					record: selector.GroupRecord(session.id, j.group, dec),
					ok:     true,
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(verdicts)
	}()
	go func() {
		defer close(jobs)
		for _, pa := range pendings {
			for _, group := range pa.pending {
				select {
				case jobs <- job{artist: pa.artist, group: group}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	settled := make(map[string][]store.DuplicateGroup, len(pendings))
	for _, pa := range pendings {
		settled[pa.artist] = pa.settled
	}
	for v := range verdicts {
		session.settlePending()
		if v.ok {
			settled[v.artist] = append(settled[v.artist], v.record)
		}
	}

	persistCtx := context.Background()
	for _, pa := range pendings {
		records := settled[pa.artist]
		if err := m.store.ReplaceArtistGroups(persistCtx, session.id, pa.artist, records); err != nil {
			session.addError()
			m.logger.Warn("persist duplicate groups failed",
				logging.String(logging.FieldArtist, pa.artist),
				logging.Error(err))
			continue
		}
		session.addGroups(len(records))
	}
}

// recordPendingSettled persists the inline-settled groups of artists whose
// batch phase never ran, so a stopped or aborted scan still keeps every
// decision already made.
func (m *Manager) recordPendingSettled(session *Session, pendings []pendingArtist) {
	persistCtx := context.Background()
	for _, pa := range pendings {
		if err := m.store.ReplaceArtistGroups(persistCtx, session.id, pa.artist, pa.settled); err != nil {
			m.logger.Warn("persist duplicate groups failed",
				logging.String(logging.FieldArtist, pa.artist),
				logging.Error(err))
			continue
		}
		session.addGroups(len(pa.settled))
	}
}

// preflight proves the configured path bindings by sampling catalog file
// paths and statting their mapped local forms. All samples missing means the
// mounts or mappings are wrong and scanning would quarantine nothing but
// ghosts.
func (m *Manager) preflight(ctx context.Context, cat *catalog.Catalog) error {
	paths, err := cat.SamplePartPaths(ctx, preflightSampleLimit)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	for _, path := range paths {
		if _, err := os.Stat(m.cfg.MapCatalogPath(path)); err == nil {
			return nil
		}
	}
	return services.WithCode(services.CodePathBinding,
		services.Wrap(services.ErrConfiguration, "scanner", "preflight",
			fmt.Sprintf("none of %d sampled catalog paths exist locally, check library mounts and path mappings", len(paths)), nil))
}

// artistGroups lists and merges the catalog artists, applying the optional
// single-artist filter.
func (m *Manager) artistGroups(ctx context.Context, cat *catalog.Catalog, opts Options) ([]dedupe.ArtistGroup, error) {
	artists, err := cat.Artists(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]dedupe.ArtistRef, 0, len(artists))
	for _, artist := range artists {
		refs = append(refs, dedupe.ArtistRef{ID: artist.ID, Name: artist.Name})
	}
	groups := dedupe.MergeArtists(refs)

	if opts.Artist == "" {
		return groups, nil
	}
	want := dedupe.NormalizeArtist(opts.Artist)
	for _, group := range groups {
		if group.Norm == want {
			return []dedupe.ArtistGroup{group}, nil
		}
	}
	return nil, services.Wrap(services.ErrValidation, "scanner", "scan",
		fmt.Sprintf("artist %q not found in the catalog", opts.Artist), nil)
}

// healthyAIClient builds the LLM client and verifies it answers. A failed
// health check downgrades the scan to detect-only instead of failing it.
func (m *Manager) healthyAIClient(ctx context.Context) *llm.Client {
	if !m.cfg.AIEnabled() {
		return nil
	}
	client := llm.NewClient(llm.Config{
		APIKey:         m.cfg.AI.APIKey,
		BaseURL:        m.cfg.AI.BaseURL,
		Model:          m.cfg.AI.Model,
		Referer:        m.cfg.AI.Referer,
		Title:          m.cfg.AI.Title,
		TimeoutSeconds: m.cfg.AI.TimeoutSeconds,
	})
	healthCtx, cancel := context.WithTimeout(ctx, aiHealthTimeout)
	defer cancel()
	if err := client.HealthCheck(healthCtx); err != nil {
		m.logger.Warn("ai model unavailable, scanning in detect-only mode",
			logging.String("model", client.Model()),
			logging.Error(err))
		return nil
	}
	return client
}

// finalize persists the scan outcome, releases every resource, and clears
// the live session. It runs on every exit path, panics included.
func (m *Manager) finalize(session *Session, cat *catalog.Catalog, queue *resolve.Queue, status store.ScanStatus, code services.Code, breakerNotified bool) {
	session.setStage(StageFinalizing)
	queue.Close()

	totals := session.summaryTotals()
	finishedAt := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := m.store.FinishScan(ctx, session.id, status, string(code), totals); err != nil {
		m.logger.Error("persist scan outcome failed",
			logging.String(logging.FieldScanID, session.id),
			logging.String(logging.FieldErrorCode, string(code)),
			logging.Error(err))
	}
	if keep := m.cfg.History.KeepRuns; keep > 0 {
		if _, err := m.store.PruneScanHistory(ctx, keep); err != nil {
			m.logger.Warn("prune scan history failed", logging.Error(err))
		}
	}
	if err := cat.Close(); err != nil {
		m.logger.Warn("close catalog failed", logging.Error(err))
	}

	switch status {
	case store.ScanStatusCompleted:
		m.notify(ctx, notifications.EventScanCompleted,
			notifications.SummaryPayload(session.id, totals, finishedAt.Sub(session.startedAt)))
	case store.ScanStatusStopped:
		m.notify(ctx, notifications.EventScanStopped, notifications.Payload{
			"scan_id": session.id,
			"artists": fmt.Sprintf("%d", totals.ArtistsScanned),
		})
	case store.ScanStatusFailed:
		if !breakerNotified {
			m.notify(ctx, notifications.EventError, notifications.Payload{
				"context": "scan",
				"error":   string(code),
			})
		}
	}

	m.mu.Lock()
	m.last = Summary{
		ScanID:     session.id,
		Status:     status,
		ErrorCode:  string(code),
		StartedAt:  session.startedAt,
		FinishedAt: finishedAt,
		Totals:     totals,
	}
	if m.lock != nil {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("release scan lock failed", logging.Error(err))
		}
		m.lock = nil
	}
	m.session = nil
	m.cancel = nil
	m.running = false
	done := m.done
	m.mu.Unlock()

	m.logger.Info("scan finished",
		logging.String(logging.FieldScanID, session.id),
		logging.String("status", string(status)),
		logging.Duration("elapsed", finishedAt.Sub(session.startedAt)),
		logging.Int("artists", totals.ArtistsScanned),
		logging.Int("albums", totals.AlbumsScanned),
		logging.Int("duplicate_groups", totals.DuplicateGroups),
		logging.Int("broken_albums", totals.BrokenAlbums),
		logging.Int("editions_moved", totals.EditionsMoved),
		logging.Int("errors", totals.Errors))

	if done != nil {
		close(done)
	}
}
