package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/store"
	"github.com/kalambet/notelink/internal/svcerr"
)

func openTestRecency(t *testing.T) *RecencyStore {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRecencyStore(st.DB())
}

func TestRecordAccess_IncrementsAndRefreshes(t *testing.T) {
	s := openTestRecency(t)
	ctx := context.Background()

	if err := s.RecordAccess(ctx, "u1", "d1", "b1", "old text", "Old > Path"); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if err := s.RecordAccess(ctx, "u1", "d1", "b1", "new text", "New > Path"); err != nil {
		t.Fatalf("second RecordAccess: %v", err)
	}

	entries, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", e.AccessCount)
	}
	if e.BulletText != "new text" || e.ContextPath != "New > Path" {
		t.Errorf("descriptive fields not refreshed: %+v", e)
	}
	if time.Since(e.LastAccessAt) > time.Minute {
		t.Errorf("LastAccessAt not updated: %v", e.LastAccessAt)
	}
}

func TestRecordAccess_PrunesLowestScoreOnOverflow(t *testing.T) {
	s := openTestRecency(t)
	ctx := context.Background()

	// Make one entry clearly the weakest: single access, far in the past.
	now := time.Now()
	s.now = func() time.Time { return now.Add(-30 * 24 * time.Hour) }
	if err := s.RecordAccess(ctx, "u1", "d0", "stale", "stale", ""); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	s.now = func() time.Time { return now }
	for i := 0; i < maxRecencyEntries; i++ {
		if err := s.RecordAccess(ctx, "u1", "d1", fmt.Sprintf("b%d", i), "fresh", ""); err != nil {
			t.Fatalf("RecordAccess %d: %v", i, err)
		}
	}

	entries, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != maxRecencyEntries {
		t.Fatalf("got %d entries, want cap %d", len(entries), maxRecencyEntries)
	}
	for _, e := range entries {
		if e.BlockID == "stale" {
			t.Error("lowest-scoring entry survived pruning")
		}
	}
}

func TestSearcher(t *testing.T) {
	s := openTestRecency(t)
	mem := editor.NewMemory(nil)
	ctx := context.Background()

	mem.PutDocument(ctx, &outline.Document{
		ID: "d1", OwnerID: "u1",
		Bullets: []*outline.Bullet{
			{ID: "b1", Text: "hello world"},
			{ID: "b2", Text: "hello there"},
			{ID: "b3", Text: "unrelated"},
		},
	})
	mem.PutDocument(ctx, &outline.Document{
		ID: "d2", OwnerID: "other",
		Bullets: []*outline.Bullet{{ID: "x1", Text: "hello from another user"}},
	})

	// b2 was visited recently; equal fuzzy scores should prefer it.
	if err := s.RecordAccess(ctx, "u1", "d1", "b2", "hello there", ""); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}

	searcher := NewSearcher(mem, s)
	got, err := searcher.Search(ctx, "u1", "hello", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].BlockID != "b2" {
		t.Errorf("first candidate = %s, want frecency tie-break to pick b2", got[0].BlockID)
	}
	for _, c := range got {
		if c.DocumentID == "d2" {
			t.Error("search returned another owner's bullet")
		}
	}
}

func TestSearcher_EmptyQueryRejected(t *testing.T) {
	searcher := NewSearcher(editor.NewMemory(nil), openTestRecency(t))
	_, err := searcher.Search(context.Background(), "u1", "   ", SearchOptions{})
	if !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
}
