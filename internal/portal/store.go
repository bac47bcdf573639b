package portal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists portals in SQLite. Only StatusSynced and StatusOrphaned are
// ever written; StatusStale lives solely in the Manager's in-memory overlay.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB. The portals table must already exist
// (created via migrations).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, p *Portal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portals
			(id, owner_id, document_id, source_document_id, source_block_id, sync_status, collapsed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.DocumentID, p.SourceDocumentID, p.SourceBlockID,
		string(p.Status), boolToInt(p.Collapsed),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting portal %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Portal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, document_id, source_document_id, source_block_id, sync_status, collapsed, created_at, updated_at
		FROM portals WHERE id = ?`, id)
	p, err := scanPortal(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading portal %s: %w", id, err)
	}
	return p, nil
}

// ListBySourceBlock returns every portal referencing the given source block.
func (s *Store) ListBySourceBlock(ctx context.Context, sourceDocumentID, sourceBlockID string) ([]*Portal, error) {
	return s.list(ctx, `
		SELECT id, owner_id, document_id, source_document_id, source_block_id, sync_status, collapsed, created_at, updated_at
		FROM portals WHERE source_document_id = ? AND source_block_id = ?`,
		sourceDocumentID, sourceBlockID)
}

// ListBySourceDocument returns every portal referencing any block inside the
// given source document.
func (s *Store) ListBySourceDocument(ctx context.Context, sourceDocumentID string) ([]*Portal, error) {
	return s.list(ctx, `
		SELECT id, owner_id, document_id, source_document_id, source_block_id, sync_status, collapsed, created_at, updated_at
		FROM portals WHERE source_document_id = ?`,
		sourceDocumentID)
}

// ListByDocument returns the portals contained in the given document.
func (s *Store) ListByDocument(ctx context.Context, ownerID, documentID string) ([]*Portal, error) {
	return s.list(ctx, `
		SELECT id, owner_id, document_id, source_document_id, source_block_id, sync_status, collapsed, created_at, updated_at
		FROM portals WHERE owner_id = ? AND document_id = ?`,
		ownerID, documentID)
}

// SetStatus persists a portal's status. Orphaned is terminal: any attempt to
// move an orphaned portal to another state is a no-op at the storage layer.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE portals SET sync_status = ?, updated_at = ?
		WHERE id = ? AND sync_status != ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id, string(StatusOrphaned),
	)
	if err != nil {
		return fmt.Errorf("updating portal %s status: %w", id, err)
	}
	return nil
}

// SetCollapsed persists the portal's collapsed flag.
func (s *Store) SetCollapsed(ctx context.Context, id string, collapsed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE portals SET collapsed = ?, updated_at = ? WHERE id = ?`,
		boolToInt(collapsed), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating portal %s collapsed flag: %w", id, err)
	}
	return nil
}

// DeleteByDocument removes the portals contained in a deleted document.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM portals WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("deleting portals in document %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Portal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying portals: %w", err)
	}
	defer rows.Close()

	var portals []*Portal
	for rows.Next() {
		p, err := scanPortal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning portal: %w", err)
		}
		portals = append(portals, p)
	}
	return portals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortal(row rowScanner) (*Portal, error) {
	var p Portal
	var status, createdAt, updatedAt string
	var collapsed int
	if err := row.Scan(&p.ID, &p.OwnerID, &p.DocumentID, &p.SourceDocumentID, &p.SourceBlockID, &status, &collapsed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.Collapsed = collapsed != 0
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
