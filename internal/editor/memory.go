package editor

import (
	"context"
	"sort"
	"sync"

	"github.com/kalambet/notelink/internal/outline"
)

// Memory is an in-process mirror of the editor layer's document trees. The
// real editor pushes whole trees and tombstones over the HTTP boundary; Memory
// holds the latest copy and emits change notifications through an optional
// Dispatcher. Tests use it directly as a fake editor.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]*outline.Document
	events *Dispatcher
}

// NewMemory creates an empty Memory. events may be nil, in which case no
// notifications are emitted.
func NewMemory(events *Dispatcher) *Memory {
	return &Memory{
		docs:   make(map[string]*outline.Document),
		events: events,
	}
}

var _ TreeReader = (*Memory)(nil)

// Document returns the stored tree, or ErrNotFound.
func (m *Memory) Document(ctx context.Context, documentID string) (*outline.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// DocumentIDs lists the documents owned by ownerID, sorted for determinism.
func (m *Memory) DocumentIDs(ctx context.Context, ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, doc := range m.docs {
		if doc.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// PutDocument stores (or replaces) a document tree and emits block-updated
// notifications for every bullet plus block-deleted for bullets that vanished
// relative to the previous copy.
func (m *Memory) PutDocument(ctx context.Context, doc *outline.Document) {
	m.mu.Lock()
	prev := m.docs[doc.ID]
	m.docs[doc.ID] = doc
	m.mu.Unlock()

	if m.events == nil {
		return
	}

	current := make(map[string]bool)
	for _, ref := range outline.Flatten(doc) {
		current[ref.BlockID] = true
		m.events.BlockUpdated(ctx, doc.ID, ref.BlockID)
	}
	if prev != nil {
		for _, ref := range outline.Flatten(prev) {
			if !current[ref.BlockID] {
				m.events.BlockDeleted(ctx, doc.ID, ref.BlockID)
			}
		}
	}
}

// DeleteBlock removes a bullet (and its subtree) from a stored document and
// emits block-deleted tombstones for every removed bullet.
func (m *Memory) DeleteBlock(ctx context.Context, documentID, blockID string) {
	m.mu.Lock()
	doc, ok := m.docs[documentID]
	var removed []string
	if ok {
		doc.Bullets, removed = pruneBullet(doc.Bullets, blockID)
	}
	m.mu.Unlock()

	if m.events == nil {
		return
	}
	for _, id := range removed {
		m.events.BlockDeleted(ctx, documentID, id)
	}
}

// DeleteDocument removes a document and emits document-deleted.
func (m *Memory) DeleteDocument(ctx context.Context, documentID string) {
	m.mu.Lock()
	_, ok := m.docs[documentID]
	delete(m.docs, documentID)
	m.mu.Unlock()

	if ok && m.events != nil {
		m.events.DocumentDeleted(ctx, documentID)
	}
}

// pruneBullet removes the bullet with the given ID from the forest and
// returns the remaining forest plus the IDs of every removed bullet.
func pruneBullet(bullets []*outline.Bullet, blockID string) ([]*outline.Bullet, []string) {
	var removed []string
	var collect func(b *outline.Bullet)
	collect = func(b *outline.Bullet) {
		removed = append(removed, b.ID)
		for _, ch := range b.Children {
			collect(ch)
		}
	}

	out := bullets[:0]
	for _, b := range bullets {
		if b.ID == blockID {
			collect(b)
			continue
		}
		b.Children, removed = pruneChild(b, blockID, removed)
		out = append(out, b)
	}
	return out, removed
}

func pruneChild(parent *outline.Bullet, blockID string, removed []string) ([]*outline.Bullet, []string) {
	var collect func(b *outline.Bullet)
	collect = func(b *outline.Bullet) {
		removed = append(removed, b.ID)
		for _, ch := range b.Children {
			collect(ch)
		}
	}

	out := parent.Children[:0]
	for _, ch := range parent.Children {
		if ch.ID == blockID {
			collect(ch)
			continue
		}
		ch.Children, removed = pruneChild(ch, blockID, removed)
		out = append(out, ch)
	}
	return out, removed
}
