package tags

import (
	"fmt"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// Picard writes MusicBrainz ids into ID3 as TXXX frames with these
// descriptions.
const (
	txxxReleaseGroupID = "MusicBrainz Release Group Id"
	txxxReleaseID      = "MusicBrainz Album Id"
)

func readMP3(path string) (FileTag, error) {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return FileTag{}, fmt.Errorf("parse id3: %w", err)
	}
	defer id3.Close()

	tag := FileTag{
		Album:  id3.Album(),
		Artist: id3.Artist(),
		Date:   id3.Year(),
	}
	if tag.Date == "" {
		tag.Date = id3.GetTextFrame("TDRC").Text
	}
	if frame := id3.GetTextFrame("TPE2"); frame.Text != "" {
		tag.AlbumArtist = frame.Text
	}

	for _, framer := range id3.GetFrames(id3.CommonID("User defined text information frame")) {
		udt, ok := framer.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(udt.Description, txxxReleaseGroupID):
			tag.ReleaseGroupID = udt.Value
		case strings.EqualFold(udt.Description, txxxReleaseID):
			tag.ReleaseID = udt.Value
		}
	}

	if len(id3.GetFrames(id3.CommonID("Attached picture"))) > 0 {
		tag.HasCover = true
	}
	tag.Year = parseYear(tag.Date)
	return tag, nil
}

func readMP3Cover(path string) ([]byte, error) {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("parse id3: %w", err)
	}
	defer id3.Close()

	var fallback []byte
	for _, framer := range id3.GetFrames(id3.CommonID("Attached picture")) {
		pic, ok := framer.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		if pic.PictureType == id3v2.PTFrontCover {
			return pic.Picture, nil
		}
		if fallback == nil {
			fallback = pic.Picture
		}
	}
	return fallback, nil
}
