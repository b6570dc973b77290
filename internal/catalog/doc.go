// Package catalog fronts the media server's library database: the
// artist/album/track hierarchy plus the file parts that carry paths and
// sizes. The scanner treats it as the source of truth for what the library
// believes it holds; the filesystem and ffprobe say what is actually there.
//
// All reads go through a read-only connection. Paths come back in the
// server's namespace; config.MapCatalogPath rewrites them into the local
// mount before any filesystem access. The single write operation,
// TrashAlbum, runs on a separate connection and only after remediation has
// physically moved the album out of the library.
package catalog
