// Package store persists everything a scan learns in a single SQLite
// database: duplicate verdicts, broken-album findings, the move ledger,
// run history, and the resolution caches.
//
// The database is a reconciliation workspace rather than an archive. Schema
// changes bump the version in schema.go; on mismatch users delete the state
// database and rescan. The library catalog itself is never written here.
//
// Writers replace per-artist result sets transactionally so concurrent
// readers always see a complete scan's view of an artist. Move records and
// the reclaimed-space counters are committed together, which keeps the status
// totals consistent with the restore ledger.
package store
