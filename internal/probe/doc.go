// Package probe runs ffprobe against library files and caches the technical
// readout keyed by path and mtime. Albums are sampled rather than probed
// exhaustively; an album whose samples all fail gets one delayed retry
// before it is declared invalid, so files still being written get a second
// look once their mtime moves.
package probe
