package dedupe

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// artistMergeThreshold is the Jaro-Winkler similarity above which two
// normalized artist names are treated as the same act.
const artistMergeThreshold = 0.95

// ArtistRef is one artist row from the catalog.
type ArtistRef struct {
	ID   int64
	Name string
}

// ArtistGroup is a set of catalog artist entries that resolve to one act.
// Name is the display name of the lowest-id member.
type ArtistGroup struct {
	Name string
	Norm string
	IDs  []int64
}

// MergeArtists folds catalog artists whose normalized names are identical or
// near-identical into single groups, so "Godspeed You! Black Emperor" and
// "Godspeed You Black Emperor" scan as one artist. Output order follows the
// sorted normalized names.
func MergeArtists(refs []ArtistRef) []ArtistGroup {
	sorted := make([]ArtistRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	exact := make(map[string]*ArtistGroup)
	norms := make([]string, 0, len(sorted))
	for _, ref := range sorted {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			continue
		}
		norm := NormalizeArtist(name)
		group, ok := exact[norm]
		if !ok {
			group = &ArtistGroup{Name: name, Norm: norm}
			exact[norm] = group
			norms = append(norms, norm)
		}
		group.IDs = append(group.IDs, ref.ID)
	}
	sort.Strings(norms)

	var groups []*ArtistGroup
	for _, norm := range norms {
		candidate := exact[norm]
		merged := false
		// Hashed fallbacks carry no textual signal, so they only merge
		// exactly.
		if !strings.HasPrefix(norm, "t#") {
			for _, group := range groups {
				if strings.HasPrefix(group.Norm, "t#") {
					continue
				}
				sim, err := edlib.StringsSimilarity(norm, group.Norm, edlib.JaroWinkler)
				if err == nil && sim >= artistMergeThreshold {
					group.IDs = append(group.IDs, candidate.IDs...)
					merged = true
					break
				}
			}
		}
		if !merged {
			groups = append(groups, candidate)
		}
	}

	out := make([]ArtistGroup, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.IDs, func(i, j int) bool { return group.IDs[i] < group.IDs[j] })
		out = append(out, *group)
	}
	return out
}
