// Package selector picks the edition to keep from a confirmed duplicate
// group. Selection is AI-driven with a persisted decision cache; there is no
// heuristic fallback, so groups are rejected outright when no usable verdict
// exists.
package selector

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"deadwax/internal/dedupe"
	"deadwax/internal/logging"
	"deadwax/internal/services"
	"deadwax/internal/services/llm"
	"deadwax/internal/store"
)

// Selector resolves best-edition decisions for duplicate groups.
type Selector struct {
	store  *store.Store
	ai     *llm.Client
	logger *slog.Logger
}

// New builds a selector. The store is required; ai may be nil, in which case
// only cached and broken-sibling decisions succeed.
func New(st *store.Store, ai *llm.Client, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{
		store:  st,
		ai:     ai,
		logger: logging.NewComponentLogger(logger, "selector"),
	}
}

// ChooseBest decides which edition of the group to keep. Broken editions are
// dropped first when a complete sibling exists; the persisted decision cache
// is consulted before the AI is asked; without either, the group is
// rejected. The returned decision is persisted so a repeat scan with the
// same edition set never re-asks.
func (s *Selector) ChooseBest(ctx context.Context, group dedupe.CandidateGroup) (store.Decision, error) {
	if len(group.Editions) < 2 {
		return store.Decision{}, services.Wrap(services.ErrValidation, "selector", "choose",
			fmt.Sprintf("group %q has %d editions", group.Key, len(group.Editions)), nil)
	}

	survivors := dropBroken(group.Editions)
	if len(survivors) == 1 {
		winner := survivors[0]
		dec := store.Decision{
			Key:           DecisionKey(group.Artist, albumIDs(group.Editions)),
			Artist:        group.Artist,
			AlbumIDs:      albumIDs(group.Editions),
			WinnerAlbumID: winner.AlbumID,
			Rationale:     "only edition without missing tracks",
			DecidedAt:     time.Now(),
		}
		s.logger.Info("edition selected",
			logging.String(logging.FieldArtist, group.Artist),
			logging.String(logging.FieldGroupKey, group.Key),
			logging.Int64("winner_album_id", winner.AlbumID),
			logging.String("mode", "broken-siblings"))
		return dec, nil
	}

	key := DecisionKey(group.Artist, albumIDs(survivors))
	cached, err := s.store.Decision(ctx, key)
	if err != nil {
		return store.Decision{}, err
	}
	if cached != nil && containsID(survivors, cached.WinnerAlbumID) {
		s.logger.Debug("decision cache hit",
			logging.String(logging.FieldArtist, group.Artist),
			logging.String(logging.FieldGroupKey, group.Key),
			logging.Int64("winner_album_id", cached.WinnerAlbumID))
		return *cached, nil
	}
	if cached != nil {
		s.logger.Warn("cached winner no longer in group, re-deciding",
			logging.String(logging.FieldArtist, group.Artist),
			logging.String("key", key),
			logging.Int64("winner_album_id", cached.WinnerAlbumID))
	}

	if !s.ai.Configured() {
		return store.Decision{}, services.WithCode(services.CodeNoWorkingAIModel,
			services.Wrap(services.ErrConfiguration, "selector", "choose",
				"ai selection required but no model is configured", nil))
	}

	reply, err := s.ai.CompleteText(ctx, selectionSystemPrompt, buildSelectionPrompt(group, survivors))
	if err != nil {
		return store.Decision{}, services.WithCode(services.CodeNoWorkingAIModel, err)
	}
	index, rationale, extras, err := parseReply(reply, len(survivors))
	if err != nil {
		return store.Decision{}, services.Wrap(services.ErrAmbiguous, "selector", "choose",
			fmt.Sprintf("unusable model reply %q", firstLine(reply)), err)
	}

	winner := survivors[index-1]
	dec := store.Decision{
		Key:           key,
		Artist:        group.Artist,
		AlbumIDs:      albumIDs(survivors),
		WinnerAlbumID: winner.AlbumID,
		Rationale:     rationale,
		ExtraTracks:   extras,
		DecidedAt:     time.Now(),
	}
	if err := s.store.SaveDecision(ctx, dec); err != nil {
		s.logger.Warn("decision cache write failed", logging.Error(err))
	}
	s.logger.Info("edition selected",
		logging.String(logging.FieldArtist, group.Artist),
		logging.String(logging.FieldGroupKey, group.Key),
		logging.Int64("winner_album_id", winner.AlbumID),
		logging.String("mode", "ai"))
	return dec, nil
}

// GroupRecord assembles the persisted row for a decided group: the winner
// summary plus every other member, broken drops included, as losers.
func GroupRecord(scanID string, group dedupe.CandidateGroup, dec store.Decision) store.DuplicateGroup {
	rec := store.DuplicateGroup{
		ScanID:      scanID,
		Artist:      group.Artist,
		GroupKey:    group.Key,
		Rationale:   dec.Rationale,
		ExtraTracks: dec.ExtraTracks,
	}
	for _, ed := range group.Editions {
		summary := summarize(ed)
		if ed.AlbumID == dec.WinnerAlbumID {
			rec.Winner = summary
			rec.ReleaseGroupID = ed.ReleaseGroupID
			continue
		}
		rec.Losers = append(rec.Losers, summary)
	}
	return rec
}

func summarize(ed *dedupe.Edition) store.EditionSummary {
	return store.EditionSummary{
		AlbumID:    ed.AlbumID,
		Title:      ed.Title,
		Path:       ed.Path,
		Codec:      ed.Tech.Codec,
		SizeBytes:  ed.SizeBytes,
		TrackCount: ed.TrackCount(),
		Year:       ed.Year,
		Broken:     ed.Broken,
	}
}

// DecisionKey derives the cache key for an artist and a set of album ids.
// The id order does not matter.
func DecisionKey(artist string, ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	sum := sha1.Sum([]byte(artist + "\x00" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// dropBroken filters out broken editions unless that would empty the set.
func dropBroken(editions []*dedupe.Edition) []*dedupe.Edition {
	complete := make([]*dedupe.Edition, 0, len(editions))
	for _, ed := range editions {
		if !ed.Broken {
			complete = append(complete, ed)
		}
	}
	if len(complete) == 0 {
		return editions
	}
	return complete
}

func albumIDs(editions []*dedupe.Edition) []int64 {
	ids := make([]int64, 0, len(editions))
	for _, ed := range editions {
		ids = append(ids, ed.AlbumID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(editions []*dedupe.Edition, id int64) bool {
	for _, ed := range editions {
		if ed.AlbumID == id {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(s)
}

// parseReply extracts (index, rationale, extra tracks) from the model's
// single-line verdict. A bare leading integer is accepted; anything else is
// a rejection.
func parseReply(reply string, n int) (int, string, []string, error) {
	line := firstLine(reply)
	if line == "" {
		return 0, "", nil, fmt.Errorf("empty reply")
	}
	parts := strings.SplitN(line, "|", 3)

	digits := leadingDigits(strings.TrimSpace(parts[0]))
	if digits == "" {
		return 0, "", nil, fmt.Errorf("no leading index in %q", line)
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", nil, fmt.Errorf("parse index: %w", err)
	}
	if index < 1 || index > n {
		return 0, "", nil, fmt.Errorf("index %d out of range 1..%d", index, n)
	}

	rationale := ""
	if len(parts) > 1 {
		rationale = strings.TrimSpace(parts[1])
	}
	if rationale == "" {
		rationale = "model selection without rationale"
	}

	var extras []string
	if len(parts) > 2 {
		extras = splitExtras(parts[2])
	}
	return index, rationale, extras, nil
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func splitExtras(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") || s == "-" {
		return nil
	}
	sep := ";"
	if !strings.Contains(s, ";") {
		sep = ","
	}
	var extras []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			extras = append(extras, trimmed)
		}
	}
	return extras
}
