package dedupe

import "testing"

func TestTrackSignatureStableAcrossOrderAndCase(t *testing.T) {
	a := []Track{
		{Disc: 1, Index: 1, Title: "Xtal", DurationSec: 294},
		{Disc: 1, Index: 2, Title: "Tha", DurationSec: 541},
	}
	b := []Track{
		{Disc: 1, Index: 2, Title: "THA ", DurationSec: 541},
		{Disc: 1, Index: 1, Title: "xtal", DurationSec: 294},
	}
	if TrackSignature(a) != TrackSignature(b) {
		t.Fatalf("signatures differ for identical track lists")
	}
}

func TestTrackSignatureDistinguishesContent(t *testing.T) {
	a := []Track{{Disc: 1, Index: 1, Title: "Xtal", DurationSec: 294}}
	b := []Track{{Disc: 1, Index: 1, Title: "Xtal", DurationSec: 295}}
	if TrackSignature(a) == TrackSignature(b) {
		t.Fatalf("different durations produced the same signature")
	}
	if TrackSignature(nil) != "" {
		t.Fatalf("empty track list should have no signature")
	}
}

func TestFormatScoreRanking(t *testing.T) {
	flac16 := FormatScore("flac", 16, 44100)
	flac24 := FormatScore("flac", 24, 96000)
	mp3 := FormatScore("mp3", 0, 44100)
	dsd := FormatScore("dsd64", 1, 2822400)

	if flac16 <= mp3 {
		t.Fatalf("lossless %d should outrank lossy %d", flac16, mp3)
	}
	if flac24 <= flac16 {
		t.Fatalf("hi-res flac %d should outrank cd flac %d", flac24, flac16)
	}
	if dsd <= flac24 {
		t.Fatalf("dsd %d should outrank flac %d", dsd, flac24)
	}
	// Lossy bonuses never cross the family boundary.
	if FormatScore("mp3", 24, 96000) >= flac16 {
		t.Fatalf("lossy codec crossed into lossless range")
	}
	if FormatScore("", 0, 0) != 0 {
		t.Fatalf("unknown codec should score 0")
	}
}

func TestFirstTrackDuration(t *testing.T) {
	ed := &Edition{Tracks: []Track{
		{Disc: 2, Index: 1, DurationSec: 100},
		{Disc: 1, Index: 2, DurationSec: 200},
		{Disc: 1, Index: 1, DurationSec: 300},
	}}
	if got := ed.FirstTrackDuration(); got != 300 {
		t.Fatalf("FirstTrackDuration = %d want 300", got)
	}
	if got := (&Edition{}).FirstTrackDuration(); got != 0 {
		t.Fatalf("empty edition duration = %d want 0", got)
	}
}

func TestTitleSourceConfidence(t *testing.T) {
	if !TitleFromCatalog.HighConfidence() || !TitleFromTag.HighConfidence() {
		t.Fatalf("catalog and tag titles should be high confidence")
	}
	if TitleFromFolder.HighConfidence() || TitleFromPlaceholder.HighConfidence() {
		t.Fatalf("folder and placeholder titles should not be high confidence")
	}
}

func TestSourceLabels(t *testing.T) {
	if TitleFromFolder.String() != "folder" {
		t.Fatalf("TitleFromFolder = %q", TitleFromFolder.String())
	}
	if IDFromDisambiguation.String() != "disambiguation" {
		t.Fatalf("IDFromDisambiguation = %q", IDFromDisambiguation.String())
	}
}
