// Package reorg drives the user-gated auto-reorganization pipeline:
// extract concepts from the current document's text, search the similarity
// index per concept, aggregate deduplicated suggestions, and, only after an
// explicit accept, create portals and enqueue the document for indexing.
package reorg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/notelink/internal/concepts"
	"github.com/kalambet/notelink/internal/portal"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/svcerr"
)

// conceptConcurrency bounds the per-concept search fan-out so one
// reorganization cannot saturate the index backend.
const conceptConcurrency = 5

// ConceptExtractor pulls candidate concepts from free text.
type ConceptExtractor interface {
	Extract(ctx context.Context, text string, maxConcepts int) ([]concepts.Concept, error)
}

// Embedder turns a concept name into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers owner-scoped nearest-neighbor queries.
type Searcher interface {
	Search(ctx context.Context, ownerID string, vector []float32, opts simindex.SearchOptions) ([]simindex.Match, error)
}

// PortalCreator creates portals inside the current document.
type PortalCreator interface {
	Create(ctx context.Context, ownerID, documentID, sourceDocumentID, sourceBlockID string) (*portal.Portal, error)
}

// SyncQueuer enqueues a document for background indexing. Enqueueing is
// idempotent, so overlapping with portal creation is harmless.
type SyncQueuer interface {
	QueueSync(documentID string)
}

// Suggestion links one extracted concept to a candidate block.
type Suggestion struct {
	Concept   concepts.Concept
	Candidate simindex.Match
}

// Orchestrator runs the pipeline. It is strictly user-initiated: nothing
// here is wired to autosave or timers, and no mutation happens before Apply
// receives an explicit accept list.
type Orchestrator struct {
	extractor ConceptExtractor
	embedder  Embedder
	searcher  Searcher
	portals   PortalCreator
	scheduler SyncQueuer
}

// New creates an Orchestrator wired to all pipeline collaborators.
func New(extractor ConceptExtractor, embedder Embedder, searcher Searcher, portals PortalCreator, scheduler SyncQueuer) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		embedder:  embedder,
		searcher:  searcher,
		portals:   portals,
		scheduler: scheduler,
	}
}

// Suggest runs steps 1–3: extraction, bounded per-concept search, and
// aggregation. A failed search for one concept is logged and skipped; the
// others still produce suggestions. Extraction failure aborts the whole
// call since there is nothing to search for.
func (o *Orchestrator) Suggest(ctx context.Context, ownerID, text string) ([]Suggestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty reorganization input: %w", svcerr.ErrMalformedInput)
	}

	extracted, err := o.extractor.Extract(ctx, text, concepts.DefaultMaxConcepts)
	if err != nil {
		return nil, fmt.Errorf("extracting concepts: %w", err)
	}

	var mu sync.Mutex
	var all []Suggestion

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(conceptConcurrency)
	for _, c := range extracted {
		g.Go(func() error {
			matches, err := o.searchConcept(gCtx, ownerID, c)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err() // cancelled: discard, don't log as failure
				}
				slog.Warn("concept search failed, skipping", "concept", c.Name, "error", err)
				return nil
			}
			mu.Lock()
			for _, m := range matches {
				all = append(all, Suggestion{Concept: c, Candidate: m})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dedupe(all), nil
}

// Apply runs steps 5–6 for an explicit accept list: every accepted portal is
// created inside the current document, the source documents stay untouched,
// and afterwards the current document is enqueued once for indexing. A
// cancelled context means no portal is created at all.
func (o *Orchestrator) Apply(ctx context.Context, ownerID, documentID string, accepted []Suggestion) ([]*portal.Portal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, nil
	}

	var created []*portal.Portal
	var errs []error
	for _, s := range accepted {
		p, err := o.portals.Create(ctx, ownerID, documentID, s.Candidate.DocumentID, s.Candidate.BlockID)
		if err != nil {
			errs = append(errs, fmt.Errorf("creating portal for %q: %w", s.Concept.Name, err))
			continue
		}
		created = append(created, p)
	}

	// Step 6 strictly after step 5 finished for every accepted item.
	if len(created) > 0 {
		o.scheduler.QueueSync(documentID)
	}
	return created, errors.Join(errs...)
}

func (o *Orchestrator) searchConcept(ctx context.Context, ownerID string, c concepts.Concept) ([]simindex.Match, error) {
	vec, err := o.embedder.Embed(ctx, c.Name)
	if err != nil {
		return nil, fmt.Errorf("embedding concept: %w", err)
	}
	matches, err := o.searcher.Search(ctx, ownerID, vec, simindex.SearchOptions{})
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return matches, nil
}

// dedupe drops suggestions pointing at a candidate block that an earlier,
// higher-scoring suggestion already covers, then orders by score descending.
func dedupe(suggestions []Suggestion) []Suggestion {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Candidate.Score > suggestions[j].Candidate.Score
	})

	seen := make(map[string]bool, len(suggestions))
	out := suggestions[:0]
	for _, s := range suggestions {
		key := s.Candidate.DocumentID + "/" + s.Candidate.BlockID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
