package portal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/svcerr"
)

// Manager is the only component that mutates portals. It listens to editor
// notifications for staleness and orphan detection and resolves portal
// content through the editor boundary.
//
// Visibility guarantee for the transitional stale state: stale exists only in
// the manager's mutex-guarded overlay while a source update is being
// re-resolved. A concurrent Resolve during that window returns the previous
// cached content together with StatusStale; it never observes a torn read,
// and the stale state is gone once the notification handler returns.
type Manager struct {
	store  *Store
	reader editor.TreeReader

	mu      sync.Mutex
	overlay map[string]Status   // transitional stale marks, never persisted
	content map[string]*Content // last resolved content per portal
}

// NewManager creates a Manager over the given store and editor boundary.
func NewManager(store *Store, reader editor.TreeReader) *Manager {
	return &Manager{
		store:   store,
		reader:  reader,
		overlay: make(map[string]Status),
		content: make(map[string]*Content),
	}
}

var _ editor.Listener = (*Manager)(nil)

// Create makes a new portal inside documentID pointing at the given source
// block, initial state synced. Linking is one-directional: the caller must
// pass the document currently being authored as documentID. Pre-existing
// documents are never mutated to host portals, and the source document is
// never touched at all.
func (m *Manager) Create(ctx context.Context, ownerID, documentID, sourceDocumentID, sourceBlockID string) (*Portal, error) {
	if ownerID == "" || documentID == "" || sourceDocumentID == "" || sourceBlockID == "" {
		return nil, fmt.Errorf("portal creation requires owner, document, and source IDs: %w", svcerr.ErrMalformedInput)
	}

	// The hosting document either belongs to the caller or is still being
	// authored and unknown to the editor; it is never another owner's.
	if doc, err := m.reader.Document(ctx, documentID); err == nil && doc.OwnerID != ownerID {
		return nil, fmt.Errorf("document %s is not writable by %s: %w", documentID, ownerID, svcerr.ErrMalformedInput)
	}

	content, err := m.readSource(ctx, ownerID, sourceDocumentID, sourceBlockID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("source block %s/%s does not exist: %w", sourceDocumentID, sourceBlockID, svcerr.ErrMalformedInput)
	}

	now := time.Now().UTC()
	p := &Portal{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		DocumentID:       documentID,
		SourceDocumentID: sourceDocumentID,
		SourceBlockID:    sourceBlockID,
		Status:           StatusSynced,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Insert(ctx, p); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.content[p.ID] = content
	m.mu.Unlock()

	return p, nil
}

// Resolve returns a portal with its effective status and resolved source
// content. Orphaned portals resolve to nil content without error; callers
// must render a neutral placeholder for them.
func (m *Manager) Resolve(ctx context.Context, portalID string) (*Portal, *Content, error) {
	p, err := m.store.Get(ctx, portalID)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	if status, ok := m.overlay[p.ID]; ok {
		p.Status = status
		cached := m.content[p.ID]
		m.mu.Unlock()
		return p, cached, nil
	}
	m.mu.Unlock()

	if p.Status == StatusOrphaned {
		return p, nil, nil
	}

	content, err := m.readSource(ctx, p.OwnerID, p.SourceDocumentID, p.SourceBlockID)
	if err != nil {
		return nil, nil, err
	}
	if content == nil {
		// Source vanished without a notification yet; no content is a valid
		// answer, the orphan transition happens when the tombstone arrives.
		return p, nil, nil
	}

	m.mu.Lock()
	m.content[p.ID] = content
	m.mu.Unlock()
	return p, content, nil
}

// SetCollapsed toggles the portal's collapsed rendering flag.
func (m *Manager) SetCollapsed(ctx context.Context, portalID string, collapsed bool) error {
	if _, err := m.store.Get(ctx, portalID); err != nil {
		return err
	}
	return m.store.SetCollapsed(ctx, portalID, collapsed)
}

// BlockCreated is part of editor.Listener; portals do not react to new blocks.
func (m *Manager) BlockCreated(ctx context.Context, documentID, blockID string) {}

// BlockUpdated re-resolves every portal whose source is the updated block:
// synced -> stale -> synced, with stale held only for the duration of the
// re-resolution.
func (m *Manager) BlockUpdated(ctx context.Context, documentID, blockID string) {
	portals, err := m.store.ListBySourceBlock(ctx, documentID, blockID)
	if err != nil {
		slog.Warn("portal: listing portals for updated block failed", "document", documentID, "block", blockID, "error", err)
		return
	}

	for _, p := range portals {
		if p.Status == StatusOrphaned {
			continue
		}

		m.mu.Lock()
		m.overlay[p.ID] = StatusStale
		m.mu.Unlock()

		content, err := m.readSource(ctx, p.OwnerID, p.SourceDocumentID, p.SourceBlockID)

		m.mu.Lock()
		delete(m.overlay, p.ID)
		if err == nil && content != nil {
			m.content[p.ID] = content
		}
		m.mu.Unlock()

		if err != nil {
			slog.Warn("portal: re-resolving source failed", "portal", p.ID, "error", err)
		}
	}
}

// BlockDeleted orphans every portal whose source is the deleted block.
func (m *Manager) BlockDeleted(ctx context.Context, documentID, blockID string) {
	portals, err := m.store.ListBySourceBlock(ctx, documentID, blockID)
	if err != nil {
		slog.Warn("portal: listing portals for deleted block failed", "document", documentID, "block", blockID, "error", err)
		return
	}
	for _, p := range portals {
		m.orphan(ctx, p)
	}
}

// DocumentDeleted cascades: every portal referencing any block inside the
// deleted document becomes orphaned, and portals contained in the deleted
// document are removed outright.
func (m *Manager) DocumentDeleted(ctx context.Context, documentID string) {
	portals, err := m.store.ListBySourceDocument(ctx, documentID)
	if err != nil {
		slog.Warn("portal: listing portals for deleted document failed", "document", documentID, "error", err)
		return
	}
	for _, p := range portals {
		m.orphan(ctx, p)
	}

	if err := m.store.DeleteByDocument(ctx, documentID); err != nil {
		slog.Warn("portal: deleting contained portals failed", "document", documentID, "error", err)
	}
}

func (m *Manager) orphan(ctx context.Context, p *Portal) {
	if err := m.store.SetStatus(ctx, p.ID, StatusOrphaned); err != nil {
		slog.Warn("portal: orphaning failed", "portal", p.ID, "error", err)
		return
	}
	m.mu.Lock()
	delete(m.overlay, p.ID)
	delete(m.content, p.ID)
	m.mu.Unlock()
	slog.Info("portal orphaned", "portal", p.ID, "source_document", p.SourceDocumentID, "source_block", p.SourceBlockID)
}

// readSource reads the live source bullet on behalf of ownerID. A missing
// document or block yields (nil, nil): absence is a state, not an error.
// A document owned by someone else reads as absent too, so a portal can
// neither be created against nor resolve another owner's content.
func (m *Manager) readSource(ctx context.Context, ownerID, documentID, blockID string) (*Content, error) {
	doc, err := m.reader.Document(ctx, documentID)
	if err != nil {
		if err == editor.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading source document %s: %w", documentID, err)
	}
	if doc.OwnerID != ownerID {
		return nil, nil
	}
	c := outline.Find(doc, blockID)
	if c == nil {
		return nil, nil
	}
	return &Content{
		Text:           c.Text,
		ContextPath:    c.ContextPath(),
		ChildSummaries: c.ChildSummaries,
	}, nil
}
