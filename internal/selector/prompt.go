package selector

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"deadwax/internal/dedupe"
)

// selectionSystemPrompt is the system prompt for best-edition selection.
const selectionSystemPrompt = `You choose which edition of a duplicated music album should be kept.

Prefer, in order: lossless over lossy formats, higher bit depth, higher sample rate, a complete standard track list over one with filler, higher bitrate, then larger size. A deluxe edition with genuine bonus tracks can beat a standard one; a lossy rip never beats a lossless one.

Reply with EXACTLY one line in the form:
<index>|<one sentence rationale>|<extra tracks>

<index> is the 1-based number of the edition to keep. <extra tracks> lists track titles that exist on losing editions but not on the winner, separated by semicolons, or the word none.`

// buildSelectionPrompt renders the candidate list the model decides over.
// Index order must match the survivors slice, since the reply indexes into
// it.
func buildSelectionPrompt(group dedupe.CandidateGroup, survivors []*dedupe.Edition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Artist: %s\n", group.Artist)
	fmt.Fprintf(&b, "Duplicate editions of one album (grouping key %q):\n", group.Key)
	for i, ed := range survivors {
		fmt.Fprintf(&b, "%d. %q: %s\n", i+1, ed.Title, strings.Join(editionDetails(ed), ", "))
	}
	b.WriteString("Which edition should be kept?")
	return b.String()
}

func editionDetails(ed *dedupe.Edition) []string {
	details := make([]string, 0, 10)
	tech := ed.Tech
	if tech.Codec != "" {
		details = append(details, strings.ToUpper(tech.Codec))
	} else {
		details = append(details, "unknown format")
	}
	if tech.BitDepth > 0 {
		details = append(details, fmt.Sprintf("%d-bit", tech.BitDepth))
	}
	if tech.SampleRateHz > 0 {
		details = append(details, fmt.Sprintf("%d Hz", tech.SampleRateHz))
	}
	if tech.BitrateKbps > 0 {
		details = append(details, fmt.Sprintf("%d kbps", tech.BitrateKbps))
	}
	details = append(details, fmt.Sprintf("%d tracks", ed.TrackCount()))
	if tech.DiscCount > 1 {
		details = append(details, fmt.Sprintf("%d discs", tech.DiscCount))
	}
	if ed.SizeBytes > 0 {
		details = append(details, humanize.IBytes(uint64(ed.SizeBytes)))
	}
	if ed.Year > 0 {
		details = append(details, fmt.Sprintf("year %d", ed.Year))
	}
	details = append(details, fmt.Sprintf("album id %d", ed.AlbumID))
	if ed.ReleaseGroupID != "" {
		details = append(details, "release group "+ed.ReleaseGroupID)
	}
	details = append(details, "title from "+ed.TitleSource.String())
	if ed.Genre != "" {
		details = append(details, "genre "+ed.Genre)
	}
	if ed.Broken {
		details = append(details, "missing tracks")
	}
	return details
}
