// Package scanner orchestrates a full library reconciliation run: it merges
// catalog artists by normalized name, fans them across a bounded worker pool,
// builds editions (tracks, technical profile, resolved metadata) for every
// album, quarantines invalid editions, detects broken albums, and records the
// duplicate groups that survive the confidence gate.
//
// Groups whose best-edition pick needs the AI run in a second batched phase
// with its own concurrency budget, so per-artist throughput is never coupled
// to the external provider. A single Manager owns the scan lifecycle:
// cooperative pause and stop at album boundaries, a consecutive-empty-artist
// circuit breaker, a flock-guarded lock file against concurrent scans, and a
// finalize step that persists the outcome on every exit path.
package scanner
