// Package tags reads album-level metadata embedded in audio files: title,
// artist, date, MusicBrainz ids, and cover art. A Picard-tagged file lets
// resolution skip every network step, so this is always consulted first.
//
// FLAC vorbis comments and ID3v2 are supported; other formats return
// ErrUnsupported and are skipped.
package tags
