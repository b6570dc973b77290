// Package musicbrainz implements the primary metadata catalog client:
// release-group search (strict and relaxed), artist browse, release-group
// and release lookups with track lists, and cover art archive queries.
//
// The client performs no rate limiting of its own. All calls are dispatched
// through the resolve queue, which serializes them and sleeps between
// dispatches to stay inside the public 1 request/second budget.
package musicbrainz
