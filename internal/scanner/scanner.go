package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"deadwax/internal/catalog"
	"deadwax/internal/config"
	"deadwax/internal/logging"
	"deadwax/internal/notifications"
	"deadwax/internal/services"
	"deadwax/internal/store"
)

// Options selects what a scan covers.
type Options struct {
	// Artist limits the scan to one act, matched on the normalized name.
	Artist string
	// ForceRefresh clears the metadata lookup and release caches first, so
	// every album resolves against the live catalog again.
	ForceRefresh bool
}

// Summary is the final outcome of one scan run.
type Summary struct {
	ScanID     string
	Status     store.ScanStatus
	ErrorCode  string
	StartedAt  time.Time
	FinishedAt time.Time
	Totals     store.ScanSummary
}

// Manager owns the scan lifecycle. At most one scan runs at a time per
// manager, and a flock on the state directory extends that guarantee across
// processes.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service

	// ProbeRetryDelay overrides the prober's album retry pause. Tests
	// shrink it; zero keeps the prober default.
	ProbeRetryDelay time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	session *Session
	lock    *flock.Flock
	last    Summary
}

// New builds a scan manager. A nil notifier falls back to the config-driven
// webhook service; a nil logger discards output.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:      cfg,
		store:    st,
		logger:   logging.NewComponentLogger(logger, "scanner"),
		notifier: notifier,
	}
}

// StartScan begins a scan in the background and returns its id. The catalog
// open and lock acquisition happen synchronously so configuration mistakes
// surface immediately; everything else runs in the scan goroutine and is
// reported through Wait.
func (m *Manager) StartScan(ctx context.Context, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return "", services.Wrap(services.ErrValidation, "scanner", "start", "a scan is already running", nil)
	}
	if err := m.cfg.EnsureDirectories(); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "scanner", "start", "prepare state directories", err)
	}

	lock := flock.New(m.cfg.LockFilePath())
	ok, err := lock.TryLock()
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "scanner", "start", "acquire scan lock", err)
	}
	if !ok {
		return "", services.Wrap(services.ErrValidation, "scanner", "start", "another scan holds the lock file", nil)
	}

	cat, err := catalog.Open(ctx, m.cfg)
	if err != nil {
		_ = lock.Unlock()
		return "", err
	}

	scanID := uuid.NewString()
	if err := m.store.BeginScan(ctx, scanID, time.Now()); err != nil {
		_ = cat.Close()
		_ = lock.Unlock()
		return "", err
	}

	runCtx, cancel := context.WithCancel(ctx)
	session := newSession(scanID)
	m.session = session
	m.cancel = cancel
	m.lock = lock
	m.running = true
	m.done = make(chan struct{})

	m.logger.Info("scan started",
		logging.String(logging.FieldScanID, scanID),
		logging.String("artist_filter", opts.Artist),
		logging.Bool("force_refresh", opts.ForceRefresh))

	go m.run(runCtx, cat, session, opts)
	return scanID, nil
}

// PauseScan suspends work at the next album boundary. Queued resolve work
// keeps draining; only new albums wait.
func (m *Manager) PauseScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.session == nil {
		return services.Wrap(services.ErrValidation, "scanner", "pause", "no scan is running", nil)
	}
	m.session.setPaused(true)
	m.logger.Info("scan paused", logging.String(logging.FieldScanID, m.session.id))
	return nil
}

// ResumeScan lifts a pause.
func (m *Manager) ResumeScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.session == nil {
		return services.Wrap(services.ErrValidation, "scanner", "resume", "no scan is running", nil)
	}
	m.session.setPaused(false)
	m.logger.Info("scan resumed", logging.String(logging.FieldScanID, m.session.id))
	return nil
}

// StopScan requests a cooperative stop and cancels in-flight external calls.
// Completed artists keep their results; the run finishes with the stopped
// status.
func (m *Manager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.session == nil {
		return services.Wrap(services.ErrValidation, "scanner", "stop", "no scan is running", nil)
	}
	m.session.RequestStop()
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("scan stop requested", logging.String(logging.FieldScanID, m.session.id))
	return nil
}

// Progress returns the live view of the current scan, or an idle snapshot
// when nothing is running.
func (m *Manager) Progress() Snapshot {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return Snapshot{Stage: StageIdle}
	}
	return session.snapshot()
}

// Wait blocks until the current scan finishes and returns its summary. With
// no scan running it returns the last completed summary immediately.
func (m *Manager) Wait() Summary {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// cancelScan aborts in-flight scan work, used by the circuit breaker.
func (m *Manager) cancelScan() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Warn("notification delivery failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
