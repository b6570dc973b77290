package dedupe

import "sort"

// DetectGaps returns the holes in an edition's track numbering. Indices are
// deduplicated and sorted first; a gap before the first track counts (After
// 0). Indices at or below zero are ignored.
func DetectGaps(indices []int) []TrackGap {
	seen := make(map[int]bool, len(indices))
	cleaned := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx <= 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		cleaned = append(cleaned, idx)
	}
	if len(cleaned) == 0 {
		return nil
	}
	sort.Ints(cleaned)

	var gaps []TrackGap
	prev := 0
	for _, idx := range cleaned {
		if missing := idx - prev - 1; missing > 0 {
			gaps = append(gaps, TrackGap{After: prev, Missing: missing})
		}
		prev = idx
	}
	return gaps
}

// IsBroken applies the gap heuristics to a track-index list: broken when any
// single gap exceeds gapThreshold, or when the total missing count exceeds
// missingPct of the tracks actually present.
func IsBroken(indices []int, gapThreshold int, missingPct float64) (bool, []TrackGap) {
	gaps := DetectGaps(indices)
	if len(gaps) == 0 {
		return false, nil
	}
	actual := distinctPositive(indices)
	totalMissing := 0
	for _, g := range gaps {
		if g.Missing > gapThreshold {
			return true, gaps
		}
		totalMissing += g.Missing
	}
	if actual > 0 && float64(totalMissing) > missingPct*float64(actual) {
		return true, gaps
	}
	return false, gaps
}

func distinctPositive(indices []int) int {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx > 0 {
			seen[idx] = true
		}
	}
	return len(seen)
}

// ExpectedTracks is the track count an edition should have once its gaps are
// filled.
func ExpectedTracks(actual int, gaps []TrackGap) int {
	total := actual
	for _, g := range gaps {
		total += g.Missing
	}
	return total
}

// EvaluateBroken runs the gap heuristics against an edition, checking each
// disc's numbering independently, and fills the Broken and Gaps fields.
func (e *Engine) EvaluateBroken(ed *Edition) {
	byDisc := make(map[int][]int)
	for _, t := range ed.Tracks {
		if t.Index <= 0 {
			continue
		}
		disc := t.Disc
		if disc <= 0 {
			disc = 1
		}
		byDisc[disc] = append(byDisc[disc], t.Index)
	}

	discs := make([]int, 0, len(byDisc))
	for disc := range byDisc {
		discs = append(discs, disc)
	}
	sort.Ints(discs)

	ed.Broken = false
	ed.Gaps = nil
	totalMissing, totalActual := 0, 0
	for _, disc := range discs {
		indices := byDisc[disc]
		broken, gaps := IsBroken(indices, e.gapThreshold, e.missingPct)
		if broken {
			ed.Broken = true
		}
		for _, g := range gaps {
			totalMissing += g.Missing
		}
		totalActual += distinctPositive(indices)
		ed.Gaps = append(ed.Gaps, gaps...)
	}
	if !ed.Broken && totalActual > 0 && float64(totalMissing) > e.missingPct*float64(totalActual) {
		ed.Broken = true
	}
}
