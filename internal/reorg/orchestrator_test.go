package reorg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/notelink/internal/concepts"
	"github.com/kalambet/notelink/internal/portal"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/svcerr"
)

type fakeExtractor struct {
	concepts []concepts.Concept
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ int) ([]concepts.Concept, error) {
	return f.concepts, f.err
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[text] {
		return nil, svcerr.ErrExternal
	}
	return []float32{1, 0}, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	matches map[string][]simindex.Match // keyed by concept name via vector marker
	byOwner string
	queries int
}

// perConcept routes matches by the concept that was embedded. The fake
// embedder returns the same vector for every concept, so the searcher keys
// on call order instead; tests that need routing use distinct match sets.
type routingSearcher struct {
	mu      sync.Mutex
	results [][]simindex.Match
	errs    []error
	queries int
}

func (r *routingSearcher) Search(_ context.Context, _ string, _ []float32, _ simindex.SearchOptions) ([]simindex.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.queries
	r.queries++
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(r.results) {
		return r.results[i], nil
	}
	return nil, nil
}

func (f *fakeSearcher) Search(_ context.Context, ownerID string, _ []float32, _ simindex.SearchOptions) ([]simindex.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.byOwner = ownerID
	return f.matches["*"], nil
}

type fakePortals struct {
	mu      sync.Mutex
	created []*portal.Portal
	failFor string // source block ID that fails creation
}

func (f *fakePortals) Create(_ context.Context, ownerID, documentID, sourceDocumentID, sourceBlockID string) (*portal.Portal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sourceBlockID == f.failFor {
		return nil, svcerr.ErrMalformedInput
	}
	p := &portal.Portal{
		ID:               "portal-" + sourceBlockID,
		OwnerID:          ownerID,
		DocumentID:       documentID,
		SourceDocumentID: sourceDocumentID,
		SourceBlockID:    sourceBlockID,
		Status:           portal.StatusSynced,
	}
	f.created = append(f.created, p)
	return p, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	docs  []string
	calls int
}

func (f *fakeQueue) QueueSync(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.docs = append(f.docs, documentID)
}

func TestSuggest_TeslaConcepts(t *testing.T) {
	extractor := &fakeExtractor{concepts: []concepts.Concept{
		{Name: "Tesla Model 3", Category: "product"},
		{Name: "electric vehicle", Category: "technology"},
		{Name: "Tesla Inc", Category: "organization"},
	}}
	searcher := &routingSearcher{results: [][]simindex.Match{
		{{DocumentID: "doc-ev", BlockID: "blk-model3", RawText: "Model 3 production ramp", Score: 0.93}},
		{{DocumentID: "doc-ev", BlockID: "blk-charging", RawText: "EV charging networks", Score: 0.85}},
		{{DocumentID: "doc-companies", BlockID: "blk-tesla", RawText: "Tesla Inc overview", Score: 0.91}},
	}}

	o := New(extractor, &fakeEmbedder{}, searcher, &fakePortals{}, &fakeQueue{})
	got, err := o.Suggest(context.Background(), "user-1", "I test drove a Tesla Model 3 today. The electric vehicle market is growing fast.")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Candidate.Score > got[i-1].Candidate.Score {
			t.Fatalf("suggestions not sorted by score: %v before %v",
				got[i-1].Candidate.Score, got[i].Candidate.Score)
		}
	}
	if got[0].Candidate.BlockID != "blk-model3" {
		t.Fatalf("top suggestion = %q, want blk-model3", got[0].Candidate.BlockID)
	}
}

func TestSuggest_EmptyInput(t *testing.T) {
	o := New(&fakeExtractor{}, &fakeEmbedder{}, &fakeSearcher{}, &fakePortals{}, &fakeQueue{})
	if _, err := o.Suggest(context.Background(), "user-1", "   "); !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
}

func TestSuggest_ExtractionFailureAborts(t *testing.T) {
	extractor := &fakeExtractor{err: svcerr.ErrTimeout}
	searcher := &fakeSearcher{}
	o := New(extractor, &fakeEmbedder{}, searcher, &fakePortals{}, &fakeQueue{})

	_, err := o.Suggest(context.Background(), "user-1", "some text")
	if !errors.Is(err, svcerr.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if searcher.queries != 0 {
		t.Fatalf("searcher queried %d times after extraction failure", searcher.queries)
	}
}

func TestSuggest_PartialConceptFailureSkips(t *testing.T) {
	extractor := &fakeExtractor{concepts: []concepts.Concept{
		{Name: "graph theory"},
		{Name: "doomed concept"},
		{Name: "linear algebra"},
	}}
	embedder := &fakeEmbedder{fail: map[string]bool{"doomed concept": true}}
	searcher := &routingSearcher{results: [][]simindex.Match{
		{{DocumentID: "d1", BlockID: "b1", Score: 0.9}},
		{{DocumentID: "d2", BlockID: "b2", Score: 0.88}},
		{{DocumentID: "d3", BlockID: "b3", Score: 0.84}},
	}}

	o := New(extractor, embedder, searcher, &fakePortals{}, &fakeQueue{})
	got, err := o.Suggest(context.Background(), "user-1", "math notes")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	// One concept failed at the embedding step; the two surviving concepts
	// each consumed a search slot, so exactly two suggestions remain.
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	for _, s := range got {
		if s.Concept.Name == "doomed concept" {
			t.Fatalf("failed concept leaked into suggestions")
		}
	}
}

func TestSuggest_DedupeKeepsHighestScore(t *testing.T) {
	extractor := &fakeExtractor{concepts: []concepts.Concept{
		{Name: "first"},
		{Name: "second"},
	}}
	searcher := &routingSearcher{results: [][]simindex.Match{
		{{DocumentID: "doc-a", BlockID: "blk-x", Score: 0.82}},
		{{DocumentID: "doc-a", BlockID: "blk-x", Score: 0.95}},
	}}

	o := New(extractor, &fakeEmbedder{}, searcher, &fakePortals{}, &fakeQueue{})
	got, err := o.Suggest(context.Background(), "user-1", "overlapping concepts")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d suggestions after dedupe, want 1", len(got))
	}
	if got[0].Candidate.Score != 0.95 {
		t.Fatalf("kept score %v, want highest (0.95)", got[0].Candidate.Score)
	}
}

func TestApply_CreatesPortalsAndEnqueuesOnce(t *testing.T) {
	portals := &fakePortals{}
	queue := &fakeQueue{}
	o := New(&fakeExtractor{}, &fakeEmbedder{}, &fakeSearcher{}, portals, queue)

	accepted := []Suggestion{
		{Concept: concepts.Concept{Name: "Tesla Inc"}, Candidate: simindex.Match{DocumentID: "doc-companies", BlockID: "blk-tesla", Score: 0.91}},
		{Concept: concepts.Concept{Name: "electric vehicle"}, Candidate: simindex.Match{DocumentID: "doc-ev", BlockID: "blk-charging", Score: 0.85}},
	}
	created, err := o.Apply(context.Background(), "user-1", "doc-current", accepted)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d portals, want 2", len(created))
	}
	for _, p := range created {
		if p.DocumentID != "doc-current" {
			t.Fatalf("portal created in %q, want doc-current", p.DocumentID)
		}
		if p.Status != portal.StatusSynced {
			t.Fatalf("new portal status = %q, want synced", p.Status)
		}
	}
	if queue.calls != 1 || queue.docs[0] != "doc-current" {
		t.Fatalf("queue calls = %d docs = %v, want one enqueue of doc-current", queue.calls, queue.docs)
	}
}

func TestApply_EmptyAcceptListIsNoop(t *testing.T) {
	portals := &fakePortals{}
	queue := &fakeQueue{}
	o := New(&fakeExtractor{}, &fakeEmbedder{}, &fakeSearcher{}, portals, queue)

	created, err := o.Apply(context.Background(), "user-1", "doc-current", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(created) != 0 || len(portals.created) != 0 || queue.calls != 0 {
		t.Fatalf("empty accept list caused side effects: created=%d queued=%d", len(portals.created), queue.calls)
	}
}

func TestApply_CancelledContextCreatesNothing(t *testing.T) {
	portals := &fakePortals{}
	queue := &fakeQueue{}
	o := New(&fakeExtractor{}, &fakeEmbedder{}, &fakeSearcher{}, portals, queue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	accepted := []Suggestion{{Candidate: simindex.Match{DocumentID: "d", BlockID: "b"}}}
	if _, err := o.Apply(ctx, "user-1", "doc-current", accepted); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(portals.created) != 0 || queue.calls != 0 {
		t.Fatalf("cancelled Apply still mutated state")
	}
}

func TestApply_PartialCreateFailure(t *testing.T) {
	portals := &fakePortals{failFor: "blk-bad"}
	queue := &fakeQueue{}
	o := New(&fakeExtractor{}, &fakeEmbedder{}, &fakeSearcher{}, portals, queue)

	accepted := []Suggestion{
		{Concept: concepts.Concept{Name: "good"}, Candidate: simindex.Match{DocumentID: "d1", BlockID: "blk-good"}},
		{Concept: concepts.Concept{Name: "bad"}, Candidate: simindex.Match{DocumentID: "d2", BlockID: "blk-bad"}},
	}
	created, err := o.Apply(context.Background(), "user-1", "doc-current", accepted)
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v, want creation error naming the failed concept", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d portals, want the surviving 1", len(created))
	}
	// The surviving portal still triggers indexing.
	if queue.calls != 1 {
		t.Fatalf("queue calls = %d, want 1", queue.calls)
	}
}
