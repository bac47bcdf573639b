package ranking

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maxRecencyEntries caps the recency table per user; the lowest-scoring
// entries are pruned on overflow.
const maxRecencyEntries = 100

// RecencyEntry records how often and how recently a user navigated to a
// bullet through a link. BulletText and ContextPath describe what the link
// currently is, refreshed on every access.
type RecencyEntry struct {
	OwnerID      string
	DocumentID   string
	BlockID      string
	BulletText   string
	ContextPath  string
	AccessCount  int
	LastAccessAt time.Time
}

// RecencyStore persists RecencyEntry rows in SQLite. It is the only writer
// of recency data; the UI layer calls RecordAccess on every
// navigation-via-link event.
type RecencyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecencyStore wraps an existing *sql.DB. The recency_entries table must
// already exist (created via migrations).
func NewRecencyStore(db *sql.DB) *RecencyStore {
	return &RecencyStore{db: db, now: time.Now}
}

// RecordAccess increments the entry's access count, stamps the access time,
// and refreshes the descriptive fields, creating the entry if needed. On
// overflow the owner's lowest-frecency entries are pruned.
func (s *RecencyStore) RecordAccess(ctx context.Context, ownerID, documentID, blockID, bulletText, contextPath string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recency_entries
			(owner_id, document_id, block_id, bullet_text, context_path, access_count, last_access_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(owner_id, document_id, block_id) DO UPDATE SET
			access_count = access_count + 1,
			last_access_at = excluded.last_access_at,
			bullet_text = excluded.bullet_text,
			context_path = excluded.context_path`,
		ownerID, documentID, blockID, bulletText, contextPath, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording access for %s/%s: %w", documentID, blockID, err)
	}
	return s.prune(ctx, ownerID)
}

// List returns the owner's recency entries.
func (s *RecencyStore) List(ctx context.Context, ownerID string) ([]RecencyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, document_id, block_id, bullet_text, context_path, access_count, last_access_at
		FROM recency_entries WHERE owner_id = ?`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recency entries: %w", err)
	}
	defer rows.Close()

	var entries []RecencyEntry
	for rows.Next() {
		var e RecencyEntry
		var lastAccess string
		if err := rows.Scan(&e.OwnerID, &e.DocumentID, &e.BlockID, &e.BulletText, &e.ContextPath, &e.AccessCount, &lastAccess); err != nil {
			return nil, fmt.Errorf("scanning recency entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339, lastAccess)
		if err != nil {
			return nil, fmt.Errorf("parsing last_access_at: %w", err)
		}
		e.LastAccessAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a single entry, used when its source bullet disappears.
func (s *RecencyStore) Delete(ctx context.Context, ownerID, documentID, blockID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM recency_entries WHERE owner_id = ? AND document_id = ? AND block_id = ?`,
		ownerID, documentID, blockID,
	)
	if err != nil {
		return fmt.Errorf("deleting recency entry: %w", err)
	}
	return nil
}

// prune drops the owner's lowest-frecency entries beyond the cap. Frecency
// is computed here rather than stored, so pruning ranks with current decay.
func (s *RecencyStore) prune(ctx context.Context, ownerID string) error {
	entries, err := s.List(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(entries) <= maxRecencyEntries {
		return nil
	}

	now := s.now()
	type scored struct {
		entry RecencyEntry
		score int
	}
	ranked := make([]scored, len(entries))
	for i, e := range entries {
		ranked[i] = scored{entry: e, score: Frecency(e.AccessCount, e.LastAccessAt, now)}
	}
	// Lowest scores first.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score < ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	for _, r := range ranked[:len(ranked)-maxRecencyEntries] {
		if err := s.Delete(ctx, ownerID, r.entry.DocumentID, r.entry.BlockID); err != nil {
			return err
		}
	}
	return nil
}
