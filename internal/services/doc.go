// Package services defines shared utilities consumed by the scan pipeline and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp scan IDs, artist names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent user-visible codes (ambiguous vs transient vs fatal).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
