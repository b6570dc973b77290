// Package dedupe groups a single artist's album editions into duplicate
// candidates and decides which candidates are trustworthy enough to act on.
//
// Editions are bucketed by normalized title, classical buckets are further
// split by release year and first-track duration, and every surviving bucket
// must pass a confidence gate before it becomes a DuplicateGroup. The package
// also owns the shared title/artist normalization pipeline and the
// broken-album gap heuristics.
package dedupe
