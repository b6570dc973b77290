// Package preflight provides readiness checks for the filesystem paths,
// external binaries, and services that deadwax depends on.
//
// The CLI "deadwax status" command runs individual checks to display
// environment health alongside scan state. Scans are not gated on
// these results -- probe and AI failures already surface through the
// scan summary with more context than a blanket preflight abort
// would give.
package preflight
