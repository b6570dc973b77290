package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minNormRunes is the shortest normalized title kept verbatim. Anything
// shorter collapses into the hashed fallback so near-empty results cannot
// collide across unrelated albums.
const minNormRunes = 3

var (
	featClauseRe    = regexp.MustCompile(`(?i)[(\[]?\s*\b(?:feat\.?|ft\.?|featuring)\s+[^()\[\]]*[)\]]?`)
	parenContentRe  = regexp.MustCompile(`\([^()]*\)`)
	bracketRe       = regexp.MustCompile(`\[[^\[\]]*\]`)
	braceRe         = regexp.MustCompile(`\{[^{}]*\}`)
	trailingParenRe = regexp.MustCompile(`\s*[(\[{][^()\[\]{}]*[)\]}]\s*$`)
)

// NormalizeTitle produces the bucketing key for an edition title: lowered,
// diacritics folded, feat clauses and trailing parenthetical or bracketed
// suffixes removed, whitespace collapsed. Results shorter than three runes
// are replaced by a short hash of the raw lowered title so they stay unique
// per source title.
func NormalizeTitle(title string) string {
	s := strings.TrimSpace(title)
	for {
		stripped := trailingParenRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = normalize(s)
	if utf8.RuneCountInString(s) < minNormRunes {
		return shortTitleHash(title)
	}
	return s
}

// CoreTitle normalizes a title with every parenthesized, bracketed, and
// braced segment removed, not just trailing ones. "Album (Deluxe) [2009]"
// and "Album" share a core title.
func CoreTitle(title string) string {
	s := parenContentRe.ReplaceAllString(title, " ")
	s = bracketRe.ReplaceAllString(s, " ")
	s = braceRe.ReplaceAllString(s, " ")
	s = normalize(s)
	if utf8.RuneCountInString(s) < minNormRunes {
		return shortTitleHash(title)
	}
	return s
}

// NormalizeArtist reduces an artist credit to its primary act in normalized
// form. "Sparks, The & Faith No More feat. Someone" and "The Sparks" merge.
func NormalizeArtist(name string) string {
	s := primaryArtist(name)
	s = normalize(s)
	s = strings.TrimPrefix(s, "the ")
	if s == "" {
		return shortTitleHash(name)
	}
	return s
}

// normalize applies the shared steps common to titles and artists: lowercase,
// diacritic folding, ampersand expansion, feat-clause removal, separator
// cleanup, and whitespace collapse.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	s = featClauseRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, " - ", " ")
	return strings.Join(strings.Fields(s), " ")
}

// foldDiacritics strips combining marks: decompose, drop the marks, recompose.
// The transformer chain is stateful, so build a fresh one per call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// primaryArtist keeps the first credited act: everything before the first
// comma, semicolon, or feat marker.
func primaryArtist(name string) string {
	s := strings.TrimSpace(name)
	if cut, _, found := strings.Cut(s, ";"); found {
		s = cut
	}
	if cut, _, found := strings.Cut(s, ","); found {
		s = cut
	}
	lower := strings.ToLower(s)
	for _, marker := range []string{" feat.", " feat ", " ft.", " ft ", " featuring "} {
		if idx := strings.Index(lower, marker); idx > 0 {
			s = s[:idx]
			lower = lower[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// shortTitleHash is the collision-safe fallback key for titles that normalize
// to nothing useful. Keyed off the raw lowered input so the same source title
// always lands in the same bucket.
func shortTitleHash(raw string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(raw))))
	return "t#" + hex.EncodeToString(sum[:])[:10]
}
