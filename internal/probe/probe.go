package probe

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"deadwax/internal/config"
	"deadwax/internal/logging"
	"deadwax/internal/services"
	"deadwax/internal/store"
)

// ErrFileInvalid marks a file that ffprobe settled on being unreadable. The
// verdict is cached until the file's mtime changes.
var ErrFileInvalid = errors.New("file failed technical probe")

// Metrics is the technical readout for one file.
type Metrics struct {
	Codec        string
	BitrateKbps  int
	SampleRateHz int
	BitDepth     int
	DurationSec  float64
}

// Tech is the aggregated readout for one album. Valid is false when every
// sampled file failed probing even after the delayed retry.
type Tech struct {
	Codec        string
	BitrateKbps  int
	SampleRateHz int
	BitDepth     int
	Valid        bool
}

// Stats reports probe-cache effectiveness for the live scan view.
type Stats struct {
	Hits   int64
	Misses int64
}

// Prober runs ffprobe behind a bounded worker pool with an mtime-keyed
// result cache.
type Prober struct {
	binary  string
	timeout time.Duration
	samples int
	store   *store.Store
	logger  *slog.Logger
	sem     chan struct{}

	// RetryDelay is the pause before the album-level retry pass. Tests
	// shrink it.
	RetryDelay time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Prober from the probe section of the config.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Prober {
	workers := cfg.Probe.Workers
	if workers <= 0 {
		workers = 1
	}
	samples := cfg.Probe.SampleFiles
	if samples <= 0 {
		samples = 3
	}
	return &Prober{
		binary:     cfg.Probe.Binary,
		timeout:    time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		samples:    samples,
		store:      st,
		logger:     logging.NewComponentLogger(logger, "probe"),
		sem:        make(chan struct{}, workers),
		RetryDelay: 2 * time.Second,
	}
}

// Stats returns the cache tallies accumulated since the last reset.
func (p *Prober) Stats() Stats {
	return Stats{Hits: p.hits.Load(), Misses: p.misses.Load()}
}

// ResetStats clears the cache tallies at the start of a scan.
func (p *Prober) ResetStats() {
	p.hits.Store(0)
	p.misses.Store(0)
}

// File probes one audio file, consulting the cache first. A cached invalid
// verdict returns ErrFileInvalid without spawning ffprobe again.
func (p *Prober) File(ctx context.Context, path string) (Metrics, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metrics{}, services.Wrap(services.ErrNotFound, "probe", "stat", path, err)
	}
	mtime := info.ModTime().Unix()

	cached, err := p.store.ProbeResult(ctx, path, mtime)
	if err != nil {
		return Metrics{}, err
	}
	if cached != nil {
		p.hits.Add(1)
		if !cached.Valid {
			return Metrics{}, ErrFileInvalid
		}
		return Metrics{
			Codec:        cached.Codec,
			BitrateKbps:  cached.BitrateKbps,
			SampleRateHz: cached.SampleRateHz,
			BitDepth:     cached.BitDepth,
		}, nil
	}
	p.misses.Add(1)

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Metrics{}, ctx.Err()
	}
	defer func() { <-p.sem }()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := inspect(runCtx, p.binary, path)
	if err != nil {
		switch {
		// An ENOENT in the chain can only be about the binary itself;
		// a missing media file surfaces as an ffprobe exit error.
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return Metrics{}, services.Wrap(services.ErrConfiguration, "probe", "run", "ffprobe binary not found", err)
		case runCtx.Err() != nil:
			return Metrics{}, services.Wrap(services.ErrTransient, "probe", "run", "ffprobe timed out", err)
		}
		p.cacheVerdict(ctx, store.ProbeRecord{Path: path, MtimeUnix: mtime, Valid: false})
		p.logger.Debug("probe marked file invalid",
			logging.String("path", path),
			logging.Error(err))
		return Metrics{}, ErrFileInvalid
	}

	metrics, err := metricsFromResult(result)
	if err != nil {
		p.cacheVerdict(ctx, store.ProbeRecord{Path: path, MtimeUnix: mtime, Valid: false})
		return Metrics{}, ErrFileInvalid
	}

	p.cacheVerdict(ctx, store.ProbeRecord{
		Path:         path,
		MtimeUnix:    mtime,
		Codec:        metrics.Codec,
		BitrateKbps:  metrics.BitrateKbps,
		SampleRateHz: metrics.SampleRateHz,
		BitDepth:     metrics.BitDepth,
		Valid:        true,
	})
	return metrics, nil
}

func (p *Prober) cacheVerdict(ctx context.Context, rec store.ProbeRecord) {
	if err := p.store.SaveProbeResult(ctx, rec); err != nil {
		p.logger.Warn("probe cache write failed",
			logging.String("path", rec.Path),
			logging.Error(err))
	}
}

// Album probes a spread of an album's files and aggregates the readouts.
// When every sample fails it waits RetryDelay and tries the spread once
// more; only then is the album declared invalid. Configuration errors
// (missing binary) abort instead of invalidating.
func (p *Prober) Album(ctx context.Context, paths []string) (Tech, error) {
	if len(paths) == 0 {
		return Tech{}, nil
	}

	samples := sampleIndices(len(paths), p.samples)
	tech, ok, err := p.probeSamples(ctx, paths, samples)
	if err != nil {
		return Tech{}, err
	}
	if ok {
		return tech, nil
	}

	select {
	case <-time.After(p.RetryDelay):
	case <-ctx.Done():
		return Tech{}, ctx.Err()
	}

	tech, ok, err = p.probeSamples(ctx, paths, samples)
	if err != nil {
		return Tech{}, err
	}
	if ok {
		return tech, nil
	}
	return Tech{Valid: false}, nil
}

func (p *Prober) probeSamples(ctx context.Context, paths []string, samples []int) (Tech, bool, error) {
	var tech Tech
	for _, idx := range samples {
		metrics, err := p.File(ctx, paths[idx])
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) || ctx.Err() != nil {
				return Tech{}, false, err
			}
			continue
		}
		if !tech.Valid {
			tech.Codec = metrics.Codec
			tech.Valid = true
		}
		if metrics.BitrateKbps > tech.BitrateKbps {
			tech.BitrateKbps = metrics.BitrateKbps
		}
		if metrics.SampleRateHz > tech.SampleRateHz {
			tech.SampleRateHz = metrics.SampleRateHz
		}
		if metrics.BitDepth > tech.BitDepth {
			tech.BitDepth = metrics.BitDepth
		}
	}
	return tech, tech.Valid, nil
}

// sampleIndices spreads the sample across the album: first, last, and
// evenly spaced middles, deduplicated for short albums.
func sampleIndices(count, samples int) []int {
	if samples >= count {
		indices := make([]int, count)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, 0, samples)
	seen := make(map[int]bool, samples)
	for i := 0; i < samples; i++ {
		idx := i * (count - 1) / (samples - 1)
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	return indices
}
