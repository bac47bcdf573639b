package syncsched

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/svcerr"
)

// fakeEmbedder returns a fixed-dimension vector and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  int // fail the first N calls
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return nil, fmt.Errorf("embedding backend down: %w", svcerr.ErrTimeout)
	}
	vec := make([]float32, simindex.Dimension)
	for i, r := range text {
		vec[i%simindex.Dimension] += float32(r)
	}
	return vec, nil
}

// fakeIndex is an in-memory simindex.Index recording operations.
type fakeIndex struct {
	mu       sync.Mutex
	records  map[string]simindex.Record // key owner/doc/block
	upserts  int
	deletes  int
	syncRuns int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: make(map[string]simindex.Record)}
}

func key(owner, doc, block string) string { return owner + "/" + doc + "/" + block }

func (f *fakeIndex) Upsert(ctx context.Context, rec simindex.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.records[key(rec.OwnerID, rec.DocumentID, rec.BlockID)] = rec
	return nil
}

func (f *fakeIndex) DeleteByBlock(ctx context.Context, owner, doc, block string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.records, key(owner, doc, block))
	return nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, owner, doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, rec := range f.records {
		if rec.OwnerID == owner && rec.DocumentID == doc {
			delete(f.records, k)
		}
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, owner string, vec []float32, opts simindex.SearchOptions) ([]simindex.Match, error) {
	return nil, nil
}

func (f *fakeIndex) ListByDocument(ctx context.Context, owner, doc string) ([]simindex.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []simindex.Record
	for _, rec := range f.records {
		if rec.OwnerID == owner && rec.DocumentID == doc {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeIndex) DocumentCounts(ctx context.Context, owner string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range f.records {
		if rec.OwnerID == owner {
			counts[rec.DocumentID]++
		}
	}
	return counts, nil
}

func (f *fakeIndex) OwnerOfDocument(ctx context.Context, doc string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.DocumentID == doc {
			return rec.OwnerID, nil
		}
	}
	return "", nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func testDoc(blocks ...string) *outline.Document {
	doc := &outline.Document{ID: "d1", OwnerID: "u1"}
	for _, b := range blocks {
		doc.Bullets = append(doc.Bullets, &outline.Bullet{ID: b, Text: "text of " + b})
	}
	return doc
}

func newTestScheduler(idx simindex.Index, emb Embedder, mem *editor.Memory) *Scheduler {
	return New(idx, emb, mem, Options{
		Debounce:    20 * time.Millisecond,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})
}

func TestQueueSync_DebouncesRapidCalls(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{}
	mem := editor.NewMemory(nil)
	mem.PutDocument(context.Background(), testDoc("b1", "b2"))

	s := newTestScheduler(idx, emb, mem)
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.QueueSync("d1")
	}
	time.Sleep(150 * time.Millisecond)

	idx.mu.Lock()
	upserts := idx.upserts
	idx.mu.Unlock()
	if upserts != 2 {
		t.Errorf("upserts = %d, want exactly one sync of 2 bullets", upserts)
	}
}

func TestSyncNow_DiffsUnchangedBullets(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{}
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	mem.PutDocument(ctx, testDoc("b1", "b2"))

	s := newTestScheduler(idx, emb, mem)
	defer s.Close()

	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("first SyncNow: %v", err)
	}
	if idx.count() != 2 {
		t.Fatalf("records = %d, want 2", idx.count())
	}

	// Change one bullet, keep the other byte-identical.
	doc := testDoc("b1", "b2")
	doc.Bullets[1].Text = "edited b2"
	mem.PutDocument(ctx, doc)

	emb.mu.Lock()
	emb.calls = 0
	emb.mu.Unlock()
	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("second SyncNow: %v", err)
	}

	emb.mu.Lock()
	calls := emb.calls
	emb.mu.Unlock()
	if calls != 1 {
		t.Errorf("embed calls = %d, want 1 (only the changed bullet)", calls)
	}
}

func TestSyncNow_DeletesRemovedBullets(t *testing.T) {
	idx := newFakeIndex()
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	mem.PutDocument(ctx, testDoc("b1", "b2", "b3"))

	s := newTestScheduler(idx, &fakeEmbedder{}, mem)
	defer s.Close()

	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	mem.PutDocument(ctx, testDoc("b1"))
	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("second SyncNow: %v", err)
	}
	if idx.count() != 1 {
		t.Errorf("records = %d, want 1 after removals", idx.count())
	}
}

func TestRetryWithBackoffThenRecovery(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{fail: 2} // first two attempts fail, third succeeds
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	mem.PutDocument(ctx, testDoc("b1"))

	s := newTestScheduler(idx, emb, mem)
	defer s.Close()

	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("SyncNow should recover within attempt budget: %v", err)
	}
	if idx.count() != 1 {
		t.Errorf("records = %d, want 1", idx.count())
	}
}

func TestFailureCeilingMarksDocumentFailed(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{fail: 100} // never recovers
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	mem.PutDocument(ctx, testDoc("b1"))

	s := newTestScheduler(idx, emb, mem)
	defer s.Close()

	if err := s.SyncNow(ctx, "d1"); err == nil {
		t.Fatal("SyncNow succeeded despite permanent failure")
	}

	var failed *DocState
	for _, st := range s.Status() {
		if st.DocumentID == "d1" {
			failed = &st
			break
		}
	}
	if failed == nil || !failed.Failed {
		t.Fatalf("status = %+v, want d1 marked failed", failed)
	}

	// A subsequent edit resets the failure count for a fresh budget.
	emb.mu.Lock()
	emb.fail = 0
	emb.mu.Unlock()
	s.QueueSync("d1")
	time.Sleep(150 * time.Millisecond)

	for _, st := range s.Status() {
		if st.DocumentID == "d1" && st.Failed {
			t.Error("document still failed after edit-triggered resync")
		}
	}
	if idx.count() != 1 {
		t.Errorf("records = %d, want 1 after recovery", idx.count())
	}
}

func TestCheckUnindexed_QueuesMissingAndPartialDocuments(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{}
	mem := editor.NewMemory(nil)
	ctx := context.Background()

	mem.PutDocument(ctx, testDoc("b1", "b2"))
	full := &outline.Document{ID: "d2", OwnerID: "u1", Bullets: []*outline.Bullet{{ID: "x", Text: "x"}}}
	mem.PutDocument(ctx, full)

	s := newTestScheduler(idx, emb, mem)
	defer s.Close()

	// d2 is fully indexed; d1 has nothing.
	if err := s.SyncNow(ctx, "d2"); err != nil {
		t.Fatalf("SyncNow d2: %v", err)
	}
	emb.mu.Lock()
	emb.calls = 0
	emb.mu.Unlock()

	if err := s.CheckUnindexed(ctx, "u1"); err != nil {
		t.Fatalf("CheckUnindexed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	emb.mu.Lock()
	calls := emb.calls
	emb.mu.Unlock()
	if calls != 2 {
		t.Errorf("embed calls = %d, want only d1's 2 bullets re-embedded", calls)
	}
}

func TestDocumentDeleted_DropsRecords(t *testing.T) {
	idx := newFakeIndex()
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	mem.PutDocument(ctx, testDoc("b1", "b2"))

	s := newTestScheduler(idx, &fakeEmbedder{}, mem)
	defer s.Close()

	if err := s.SyncNow(ctx, "d1"); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	mem.DeleteDocument(ctx, "d1")
	s.DocumentDeleted(ctx, "d1")

	if idx.count() != 0 {
		t.Errorf("records = %d, want 0 after document delete", idx.count())
	}
}

func TestConcurrentQueueSyncDifferentDocuments(t *testing.T) {
	idx := newFakeIndex()
	mem := editor.NewMemory(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		doc := &outline.Document{ID: fmt.Sprintf("doc%d", i), OwnerID: "u1",
			Bullets: []*outline.Bullet{{ID: "b", Text: fmt.Sprintf("bullet %d", i)}}}
		mem.PutDocument(ctx, doc)
	}

	s := newTestScheduler(idx, &fakeEmbedder{}, mem)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.QueueSync(fmt.Sprintf("doc%d", i))
		}(i)
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if idx.count() != 5 {
		t.Errorf("records = %d, want one per document", idx.count())
	}
}
