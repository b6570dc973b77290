package tags

import (
	"fmt"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// Picard writes MusicBrainz ids into vorbis comments under these names.
const (
	vorbisReleaseGroupID = "MUSICBRAINZ_RELEASEGROUPID"
	vorbisReleaseID      = "MUSICBRAINZ_ALBUMID"
	vorbisAlbumArtist    = "ALBUMARTIST"
)

func readFLAC(path string) (FileTag, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return FileTag{}, fmt.Errorf("parse flac: %w", err)
	}

	var tag FileTag
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			comments, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			tag.Album = vorbisFirst(comments, flacvorbis.FIELD_ALBUM)
			tag.Artist = vorbisFirst(comments, flacvorbis.FIELD_ARTIST)
			tag.AlbumArtist = vorbisFirst(comments, vorbisAlbumArtist)
			tag.Date = vorbisFirst(comments, flacvorbis.FIELD_DATE)
			tag.ReleaseGroupID = vorbisFirst(comments, vorbisReleaseGroupID)
			tag.ReleaseID = vorbisFirst(comments, vorbisReleaseID)
		case flac.Picture:
			tag.HasCover = true
		}
	}
	tag.Year = parseYear(tag.Date)
	return tag, nil
}

func readFLACCover(path string) ([]byte, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse flac: %w", err)
	}

	var fallback []byte
	for _, block := range f.Meta {
		if block.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		if pic.PictureType == flacpicture.PictureTypeFrontCover {
			return pic.ImageData, nil
		}
		if fallback == nil {
			fallback = pic.ImageData
		}
	}
	return fallback, nil
}

func vorbisFirst(comments *flacvorbis.MetaDataBlockVorbisComment, field string) string {
	values, err := comments.Get(field)
	if err != nil || len(values) == 0 {
		return ""
	}
	return values[0]
}
