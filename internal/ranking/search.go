package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/svcerr"
)

// LinkCandidate is one ranked result of a manual link search.
type LinkCandidate struct {
	DocumentID  string
	BlockID     string
	BulletText  string
	ContextPath string
	// Score is the fuzzy match score against the typed query.
	Score float64
	// Frecency reflects recorded link navigations; 0 when never accessed.
	Frecency int
}

// SearchOptions tunes a link search. Zero values select the defaults.
type SearchOptions struct {
	Threshold float64
	Limit     int
}

// Searcher serves the manual "link search" surface: fuzzy matching over the
// user's locally known bullets, with frecency breaking ties between equal
// fuzzy scores. It bypasses the orchestrator and the vector index entirely.
type Searcher struct {
	reader  editor.TreeReader
	recency *RecencyStore
}

// NewSearcher creates a Searcher over the editor boundary and recency store.
func NewSearcher(reader editor.TreeReader, recency *RecencyStore) *Searcher {
	return &Searcher{reader: reader, recency: recency}
}

// Search ranks the owner's bullets against the typed query. Empty queries are
// rejected locally, before touching the editor layer.
func (s *Searcher) Search(ctx context.Context, ownerID, query string, opts SearchOptions) ([]LinkCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty link search query: %w", svcerr.ErrMalformedInput)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultFuzzyThreshold
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultFuzzyLimit
	}

	frecencies, err := s.frecencyByBlock(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	docIDs, err := s.reader.DocumentIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	var candidates []LinkCandidate
	for _, docID := range docIDs {
		doc, err := s.reader.Document(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", docID, err)
		}
		for _, ref := range outline.Flatten(doc) {
			score := FuzzyScore(query, ref.Context.Text)
			if score == 0 || score < opts.Threshold {
				continue
			}
			candidates = append(candidates, LinkCandidate{
				DocumentID:  docID,
				BlockID:     ref.BlockID,
				BulletText:  ref.Context.Text,
				ContextPath: ref.Context.ContextPath(),
				Score:       score,
				Frecency:    frecencies[docID+"/"+ref.BlockID],
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Frecency > candidates[j].Frecency
	})
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	return candidates, nil
}

func (s *Searcher) frecencyByBlock(ctx context.Context, ownerID string) (map[string]int, error) {
	entries, err := s.recency.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.recency.now()
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		out[e.DocumentID+"/"+e.BlockID] = Frecency(e.AccessCount, e.LastAccessAt, now)
	}
	return out, nil
}
