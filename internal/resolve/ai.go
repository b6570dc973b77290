package resolve

import (
	"context"
	"fmt"
	"strings"

	"deadwax/internal/logging"
	"deadwax/internal/services/llm"
	"deadwax/internal/services/musicbrainz"
	"deadwax/internal/services/websearch"
)

const (
	voteSystemPrompt = "You match a local music album to its canonical release group. " +
		"Answer with JSON only, no prose."
	disambiguateSystemPrompt = "You identify which candidate release group a local album folder " +
		"actually is, using track counts, years, and cover-art availability. " +
		"Answer with JSON only, no prose."

	maxPromptTrackTitles = 5
)

type indexReply struct {
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}

// voteOnTitles asks for a pick from candidate titles alone. Returns the
// 0-based candidate index, or -1 when the model declines or cannot be
// parsed. A failed vote is a miss, not an error: the chain carries on.
func (r *Resolver) voteOnTitles(ctx context.Context, req Request, cands []musicbrainz.ReleaseGroupResult) int {
	var b strings.Builder
	fmt.Fprintf(&b, "Local album: %q by %q", req.Album, req.Artist)
	if req.TrackCount > 0 {
		fmt.Fprintf(&b, " (%d tracks)", req.TrackCount)
	}
	b.WriteString(".\nCandidates:\n")
	for i, cand := range cands {
		fmt.Fprintf(&b, "%d. %q", i+1, cand.Title)
		if details := candidateDetails(cand); details != "" {
			fmt.Fprintf(&b, " (%s)", details)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Reply {\"index\": N} with the 1-based number of the matching candidate, or {\"index\": 0} if none match.")

	reply, err := r.completeIndex(ctx, voteSystemPrompt, b.String())
	if err != nil {
		r.logger.Debug("title vote failed", logging.Error(err))
		return -1
	}
	if reply.Index < 1 || reply.Index > len(cands) {
		return -1
	}
	return reply.Index - 1
}

// disambiguate asks for a pick from fully fetched candidates, cross-checking
// cover availability when the local files embed one. Returns nil when the
// model says none match.
func (r *Resolver) disambiguate(ctx context.Context, req Request, metas []*Metadata, snippets []websearch.Snippet) *Metadata {
	covers := r.candidateCovers(ctx, req, metas)

	var b strings.Builder
	fmt.Fprintf(&b, "Local album: %q by %q", req.Album, req.Artist)
	if req.TrackCount > 0 {
		fmt.Fprintf(&b, ", %d tracks", req.TrackCount)
	}
	if req.HasCover {
		b.WriteString(", has embedded cover art")
	}
	b.WriteString(".\n")
	if titles := sampleTitles(req.TrackTitles); len(titles) > 0 {
		fmt.Fprintf(&b, "First tracks: %s.\n", strings.Join(titles, "; "))
	}
	b.WriteString("Candidates:\n")
	for i, meta := range metas {
		fmt.Fprintf(&b, "%d. %q", i+1, meta.Title)
		var details []string
		if meta.Year > 0 {
			details = append(details, fmt.Sprintf("%d", meta.Year))
		}
		if meta.TrackCount > 0 {
			details = append(details, fmt.Sprintf("%d tracks", meta.TrackCount))
		}
		if req.HasCover {
			if covers[i] != "" {
				details = append(details, "cover art on file")
			} else {
				details = append(details, "no cover art on file")
			}
		}
		details = append(details, meta.ReleaseGroupID)
		fmt.Fprintf(&b, " (%s)\n", strings.Join(details, ", "))
	}
	if len(snippets) > 0 {
		b.WriteString("Web search context:\n")
		for _, snippet := range snippets {
			fmt.Fprintf(&b, "- %s: %s\n", snippet.Title, snippet.Content)
		}
	}
	b.WriteString("Reply {\"index\": N, \"confidence\": C} with the 1-based number of the matching " +
		"candidate and C between 0 and 1, or {\"index\": 0} if none match.")

	reply, err := r.completeIndex(ctx, disambiguateSystemPrompt, b.String())
	if err != nil {
		r.logger.Debug("disambiguation failed", logging.Error(err))
		return nil
	}
	if reply.Index < 1 || reply.Index > len(metas) {
		return nil
	}
	chosen := metas[reply.Index-1]
	if reply.Confidence > 0 && reply.Confidence <= 1 {
		chosen.Confidence = reply.Confidence
	}
	if url := covers[reply.Index-1]; url != "" {
		chosen.CoverURL = url
	}
	return chosen
}

// disambiguateWithWeb reruns disambiguation with search snippets folded in.
func (r *Resolver) disambiguateWithWeb(ctx context.Context, req Request, metas []*Metadata) *Metadata {
	query := fmt.Sprintf("%q %s album", req.Album, req.Artist)
	snippets, err := submit(ctx, r.queue, "websearch:"+normalizeKey(query), func(ctx context.Context) ([]websearch.Snippet, error) {
		return r.web.Search(ctx, query, webSnippetLimit)
	})
	if err != nil || len(snippets) == 0 {
		if err != nil {
			r.logger.Debug("web search failed", logging.Error(err))
		}
		return nil
	}
	return r.disambiguate(ctx, req, metas, snippets)
}

// candidateCovers checks cover-art availability per candidate, but only when
// the local album embeds art to compare against.
func (r *Resolver) candidateCovers(ctx context.Context, req Request, metas []*Metadata) map[int]string {
	covers := make(map[int]string, len(metas))
	if !req.HasCover {
		return covers
	}
	for i, meta := range metas {
		rgid := meta.ReleaseGroupID
		if rgid == "" {
			continue
		}
		url, err := submit(ctx, r.queue, "coverart:"+rgid, func(ctx context.Context) (string, error) {
			return r.catalog.CoverArtURL(ctx, rgid)
		})
		if err != nil {
			r.logger.Debug("cover art check failed",
				logging.String("release_group", rgid), logging.Error(err))
			continue
		}
		covers[i] = url
	}
	return covers
}

func (r *Resolver) completeIndex(ctx context.Context, system, user string) (indexReply, error) {
	content, err := r.ai.CompleteJSON(ctx, system, user)
	if err != nil {
		return indexReply{}, err
	}
	var reply indexReply
	if err := llm.DecodeLLMJSON(content, &reply); err != nil {
		return indexReply{}, err
	}
	return reply, nil
}

func candidateDetails(cand musicbrainz.ReleaseGroupResult) string {
	var details []string
	if year := cand.Year(); year > 0 {
		details = append(details, fmt.Sprintf("%d", year))
	}
	if cand.PrimaryType != "" {
		details = append(details, cand.PrimaryType)
	}
	if len(cand.SecondaryTypes) > 0 {
		details = append(details, strings.Join(cand.SecondaryTypes, "/"))
	}
	return strings.Join(details, ", ")
}

func sampleTitles(titles []string) []string {
	if len(titles) > maxPromptTrackTitles {
		titles = titles[:maxPromptTrackTitles]
	}
	out := make([]string, 0, len(titles))
	for _, title := range titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%q", title))
	}
	return out
}
