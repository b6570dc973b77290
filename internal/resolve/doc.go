// Package resolve turns (artist, album) pairs into canonical album metadata.
//
// All outbound catalog traffic funnels through a single-writer Queue that
// dispatches FIFO and sleeps a fixed interval after every call, holding the
// public rate budget no matter how many scan workers are waiting. Identical
// calls coalesce on their key, so concurrent interest in one album costs one
// network round trip.
//
// The Resolver walks a fixed ladder: embedded identifier tags, the lookup
// cache, live search (strict, relaxed, artist browse with fuzzy title match,
// raw title retry), an AI title vote with a track-count sanity check, full
// candidate fetch with AI disambiguation and cover cross-check, a web-search
// augmented AI pass, and finally the secondary catalogs, which supply title,
// cover, and year only. Outcomes are cached positively or negatively so
// repeat scans stay off the network.
package resolve
