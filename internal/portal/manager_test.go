package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/store"
	"github.com/kalambet/notelink/internal/svcerr"
)

func newTestManager(t *testing.T) (*Manager, *editor.Memory) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem := editor.NewMemory(nil)
	return NewManager(NewStore(st.DB()), mem), mem
}

func seedSource(t *testing.T, mem *editor.Memory) {
	t.Helper()
	mem.PutDocument(context.Background(), &outline.Document{
		ID: "src-doc", OwnerID: "u1",
		Bullets: []*outline.Bullet{{
			ID: "tesla", Text: "Tesla",
			Children: []*outline.Bullet{{
				ID: "what", Text: "What", Descriptor: outline.DescriptorWhat,
				Children: []*outline.Bullet{{ID: "desc", Text: "Electric car company"}},
			}},
		}},
	})
}

func TestCreateAndResolve(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	p, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != StatusSynced {
		t.Errorf("initial status = %s, want synced", p.Status)
	}

	got, content, err := m.Resolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusSynced {
		t.Errorf("resolved status = %s, want synced", got.Status)
	}
	if content == nil {
		t.Fatal("resolved content is nil for a live source")
	}
	if content.Text != "Electric car company" {
		t.Errorf("content text = %q", content.Text)
	}
	if content.ContextPath != "Tesla > What" {
		t.Errorf("context path = %q", content.ContextPath)
	}
}

func TestCreate_MissingSourceRejected(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)

	_, err := m.Create(context.Background(), "u1", "new-doc", "src-doc", "no-such-block")
	if !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
}

func TestCreate_ForeignSourceRejected(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)

	// src-doc belongs to u1; u2 must not be able to point a portal at it.
	_, err := m.Create(context.Background(), "u2", "new-doc", "src-doc", "desc")
	if !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
}

func TestCreate_ForeignHostDocumentRejected(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	mem.PutDocument(ctx, &outline.Document{
		ID: "their-doc", OwnerID: "u2",
		Bullets: []*outline.Bullet{{ID: "b1", Text: "theirs"}},
	})

	_, err := m.Create(ctx, "u1", "their-doc", "src-doc", "desc")
	if !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
}

func TestBlockUpdated_ResolvesFreshContent(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	p, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Edit the source bullet, then deliver the update notification.
	mem.PutDocument(ctx, &outline.Document{
		ID: "src-doc", OwnerID: "u1",
		Bullets: []*outline.Bullet{{
			ID: "tesla", Text: "Tesla",
			Children: []*outline.Bullet{{
				ID: "what", Text: "What", Descriptor: outline.DescriptorWhat,
				Children: []*outline.Bullet{{ID: "desc", Text: "EV maker from Austin"}},
			}},
		}},
	})
	m.BlockUpdated(ctx, "src-doc", "desc")

	got, content, err := m.Resolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusSynced {
		t.Errorf("status after update = %s, want synced (stale is transitional only)", got.Status)
	}
	if content == nil || content.Text != "EV maker from Austin" {
		t.Errorf("content = %+v, want refreshed text", content)
	}
}

func TestBlockDeleted_Orphans(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	p, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mem.DeleteBlock(ctx, "src-doc", "desc")
	m.BlockDeleted(ctx, "src-doc", "desc")

	got, content, err := m.Resolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resolve after orphan: %v", err)
	}
	if got.Status != StatusOrphaned {
		t.Errorf("status = %s, want orphaned", got.Status)
	}
	if content != nil {
		t.Error("orphaned portal resolved to non-nil content")
	}
}

func TestOrphanedIsTerminal(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	p, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.BlockDeleted(ctx, "src-doc", "desc")

	// A later update notification for the same block must not revive it.
	seedSource(t, mem)
	m.BlockUpdated(ctx, "src-doc", "desc")

	got, _, err := m.Resolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusOrphaned {
		t.Errorf("status = %s, orphaned must be terminal", got.Status)
	}
}

func TestDocumentDeleted_CascadesAndCleansUp(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	// One portal points into src-doc, another lives inside src-doc.
	pointing, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	contained, err := m.Create(ctx, "u1", "src-doc", "src-doc", "tesla")
	if err != nil {
		t.Fatalf("Create contained: %v", err)
	}

	mem.DeleteDocument(ctx, "src-doc")
	m.DocumentDeleted(ctx, "src-doc")

	got, content, err := m.Resolve(ctx, pointing.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusOrphaned {
		t.Errorf("pointing portal status = %s, want orphaned", got.Status)
	}
	if content != nil {
		t.Error("orphaned portal resolved to content")
	}

	if _, _, err := m.Resolve(ctx, contained.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("contained portal error = %v, want ErrNotFound after cleanup", err)
	}
}

func TestResolve_SourceGoneBeforeNotification(t *testing.T) {
	m, mem := newTestManager(t)
	seedSource(t, mem)
	ctx := context.Background()

	p, err := m.Create(ctx, "u1", "new-doc", "src-doc", "desc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Source vanishes but no tombstone has been delivered yet: resolution
	// must return no content without error, and the persisted state is
	// still synced until the notification arrives.
	mem.DeleteBlock(ctx, "src-doc", "desc")

	got, content, err := m.Resolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if content != nil {
		t.Error("missing source resolved to content")
	}
	if got.Status != StatusSynced {
		t.Errorf("status = %s, want synced until tombstone observed", got.Status)
	}
}
