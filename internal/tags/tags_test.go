package tags_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"deadwax/internal/tags"
)

var coverBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}

func writeMP3Fixture(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x44}, 64), 0o644); err != nil {
		t.Fatalf("write mp3 body: %v", err)
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open id3: %v", err)
	}
	tag.SetAlbum("Geogaddi")
	tag.SetArtist("Boards of Canada")
	tag.AddTextFrame(tag.CommonID("Year"), tag.DefaultEncoding(), "2002")
	tag.AddTextFrame("TPE2", tag.DefaultEncoding(), "Boards of Canada")
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: "MusicBrainz Release Group Id",
		Value:       "rg-geogaddi",
	})
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: "MusicBrainz Album Id",
		Value:       "rel-geogaddi",
	})
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "cover",
		Picture:     coverBytes,
	})
	if err := tag.Save(); err != nil {
		t.Fatalf("save id3: %v", err)
	}
	if err := tag.Close(); err != nil {
		t.Fatalf("close id3: %v", err)
	}
}

func writeFLACFixture(t *testing.T, path string) {
	t.Helper()
	header := []byte{'f', 'L', 'a', 'C', 0x80, 0x00, 0x00, 0x22}
	if err := os.WriteFile(path, append(header, make([]byte, 34)...), 0o644); err != nil {
		t.Fatalf("write flac skeleton: %v", err)
	}

	f, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("parse flac skeleton: %v", err)
	}

	comments := flacvorbis.New()
	for _, kv := range [][2]string{
		{flacvorbis.FIELD_ALBUM, "Music Has the Right to Children"},
		{flacvorbis.FIELD_ARTIST, "Boards of Canada"},
		{"ALBUMARTIST", "Boards of Canada"},
		{flacvorbis.FIELD_DATE, "1998-04-20"},
		{"MUSICBRAINZ_RELEASEGROUPID", "rg-mhtrtc"},
		{"MUSICBRAINZ_ALBUMID", "rel-mhtrtc"},
	} {
		if err := comments.Add(kv[0], kv[1]); err != nil {
			t.Fatalf("add vorbis field %s: %v", kv[0], err)
		}
	}
	commentBlock := comments.Marshal()
	f.Meta = append(f.Meta, &commentBlock)

	pic := &flacpicture.MetadataBlockPicture{
		PictureType: flacpicture.PictureTypeFrontCover,
		MIME:        "image/jpeg",
		ImageData:   coverBytes,
	}
	picBlock := pic.Marshal()
	f.Meta = append(f.Meta, &picBlock)

	if err := f.Save(path); err != nil {
		t.Fatalf("save flac fixture: %v", err)
	}
}

func TestReadMP3Tags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01 - Music Is Math.mp3")
	writeMP3Fixture(t, path)

	tag, err := tags.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if tag.Album != "Geogaddi" || tag.Artist != "Boards of Canada" {
		t.Fatalf("basic fields lost: %#v", tag)
	}
	if tag.AlbumArtist != "Boards of Canada" {
		t.Fatalf("album artist lost: %#v", tag)
	}
	if tag.ReleaseGroupID != "rg-geogaddi" || tag.ReleaseID != "rel-geogaddi" {
		t.Fatalf("musicbrainz ids lost: %#v", tag)
	}
	if tag.Year != 2002 {
		t.Fatalf("year lost: %#v", tag)
	}
	if !tag.HasCover {
		t.Fatal("expected cover flag")
	}

	cover, err := tags.ReadCover(path)
	if err != nil {
		t.Fatalf("ReadCover failed: %v", err)
	}
	if !bytes.Equal(cover, coverBytes) {
		t.Fatalf("cover bytes differ: %v", cover)
	}
}

func TestReadFLACTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01 - Wildlife Analysis.flac")
	writeFLACFixture(t, path)

	tag, err := tags.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if tag.Album != "Music Has the Right to Children" {
		t.Fatalf("album lost: %#v", tag)
	}
	if tag.ReleaseGroupID != "rg-mhtrtc" || tag.ReleaseID != "rel-mhtrtc" {
		t.Fatalf("musicbrainz ids lost: %#v", tag)
	}
	if tag.Year != 1998 {
		t.Fatalf("year lost: %#v", tag)
	}
	if !tag.HasCover {
		t.Fatal("expected cover flag")
	}

	cover, err := tags.ReadCover(path)
	if err != nil {
		t.Fatalf("ReadCover failed: %v", err)
	}
	if !bytes.Equal(cover, coverBytes) {
		t.Fatalf("cover bytes differ: %v", cover)
	}
}

func TestReadFileUnsupported(t *testing.T) {
	if _, err := tags.ReadFile("/music/whatever.ogg"); !errors.Is(err, tags.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := tags.ReadCover("/music/whatever.wav"); !errors.Is(err, tags.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestReadAlbumSamplesUntilTagged(t *testing.T) {
	dir := t.TempDir()
	untagged := filepath.Join(dir, "01 - untagged.mp3")
	if err := os.WriteFile(untagged, bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x44}, 64), 0o644); err != nil {
		t.Fatalf("write untagged mp3: %v", err)
	}
	tagged := filepath.Join(dir, "02 - tagged.mp3")
	writeMP3Fixture(t, tagged)

	paths := []string{
		filepath.Join(dir, "cover.png"),
		untagged,
		tagged,
	}

	tag, ok := tags.ReadAlbum(paths, 3)
	if !ok {
		t.Fatal("expected a tag within the sample window")
	}
	if tag.Album != "Geogaddi" {
		t.Fatalf("unexpected tag: %#v", tag)
	}

	if _, ok := tags.ReadAlbum(paths, 2); ok {
		t.Fatal("expected no tag when the sample window stops short")
	}
}

func TestParseYearFormats(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"2002", 2002},
		{"1998-04-20", 1998},
		{"released in 1971, remastered", 1971},
		{"n/a", 0},
		{"12", 0},
		{"", 0},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), "x.mp3")
		if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xFB}, 32), 0o644); err != nil {
			t.Fatalf("write mp3: %v", err)
		}
		tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
		if err != nil {
			t.Fatalf("open id3: %v", err)
		}
		tag.AddTextFrame(tag.CommonID("Year"), tag.DefaultEncoding(), tc.date)
		if err := tag.Save(); err != nil {
			t.Fatalf("save id3: %v", err)
		}
		tag.Close()

		got, err := tags.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed for %q: %v", tc.date, err)
		}
		if got.Year != tc.want {
			t.Fatalf("parseYear(%q) = %d, want %d", tc.date, got.Year, tc.want)
		}
	}
}
