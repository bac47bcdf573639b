package simindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/svcerr"
)

// Compile-time check that SQLiteIndex implements Index.
var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex is the default Index implementation: brute-force cosine
// similarity over float32 vectors stored as little-endian blobs in SQLite.
// Fine for per-user note collections; an ANN-backed implementation can
// replace it behind the same interface if collections outgrow it.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an existing *sql.DB for vector operations.
// The embedding_records table must already exist (created via migrations).
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

func (s *SQLiteIndex) Upsert(ctx context.Context, rec Record) error {
	if rec.OwnerID == "" || rec.DocumentID == "" || rec.BlockID == "" {
		return fmt.Errorf("upsert requires owner, document, and block IDs: %w", svcerr.ErrMalformedInput)
	}
	if len(rec.Vector) != Dimension {
		return fmt.Errorf("vector has %d dimensions, want %d: %w", len(rec.Vector), Dimension, svcerr.ErrMalformedInput)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_records
			(owner_id, document_id, block_id, raw_text, context_path, descriptor, child_summary, embed_text, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, document_id, block_id) DO UPDATE SET
			raw_text = excluded.raw_text,
			context_path = excluded.context_path,
			descriptor = excluded.descriptor,
			child_summary = excluded.child_summary,
			embed_text = excluded.embed_text,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		rec.OwnerID, rec.DocumentID, rec.BlockID,
		rec.RawText, rec.ContextPath, string(rec.Descriptor), rec.ChildSummary,
		rec.EmbedText, encodeFloat32s(rec.Vector), updatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting record %s/%s: %w", rec.DocumentID, rec.BlockID, err)
	}
	return nil
}

func (s *SQLiteIndex) DeleteByBlock(ctx context.Context, ownerID, documentID, blockID string) error {
	if ownerID == "" {
		return fmt.Errorf("delete requires an owner: %w", svcerr.ErrMalformedInput)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM embedding_records WHERE owner_id = ? AND document_id = ? AND block_id = ?`,
		ownerID, documentID, blockID,
	)
	if err != nil {
		return fmt.Errorf("deleting record %s/%s: %w", documentID, blockID, err)
	}
	return nil
}

func (s *SQLiteIndex) DeleteByDocument(ctx context.Context, ownerID, documentID string) error {
	if ownerID == "" {
		return fmt.Errorf("delete requires an owner: %w", svcerr.ErrMalformedInput)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM embedding_records WHERE owner_id = ? AND document_id = ?`,
		ownerID, documentID,
	)
	if err != nil {
		return fmt.Errorf("deleting records for document %s: %w", documentID, err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, ownerID string, vector []float32, opts SearchOptions) ([]Match, error) {
	if ownerID == "" {
		// Omitting the owner is never "all users".
		return nil, fmt.Errorf("search requires an owner: %w", svcerr.ErrMalformedInput)
	}
	if len(vector) != Dimension {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d: %w", len(vector), Dimension, svcerr.ErrMalformedInput)
	}
	opts = opts.withDefaults()

	query := `SELECT document_id, block_id, raw_text, context_path, descriptor, child_summary, vector
		FROM embedding_records WHERE owner_id = ?`
	args := []any{ownerID}
	if opts.Descriptor != outline.DescriptorNone {
		query += ` AND descriptor = ?`
		args = append(args, string(opts.Descriptor))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32
	var matches []Match

	for rows.Next() {
		var m Match
		var descriptor string
		var blob []byte
		if err := rows.Scan(&m.DocumentID, &m.BlockID, &m.RawText, &m.ContextPath, &descriptor, &m.ChildSummary, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s/%s: %w", m.DocumentID, m.BlockID, err)
		}

		score := cosine(vector, buf, queryNorm)
		if score < opts.Threshold {
			continue
		}
		m.Descriptor = outline.DescriptorTag(descriptor)
		m.Score = score
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (s *SQLiteIndex) ListByDocument(ctx context.Context, ownerID, documentID string) ([]Record, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("list requires an owner: %w", svcerr.ErrMalformedInput)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, document_id, block_id, raw_text, context_path, descriptor, child_summary, embed_text, vector, updated_at
		FROM embedding_records WHERE owner_id = ? AND document_id = ?`,
		ownerID, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying document records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var descriptor, updatedAt string
		var blob []byte
		if err := rows.Scan(&rec.OwnerID, &rec.DocumentID, &rec.BlockID, &rec.RawText, &rec.ContextPath, &descriptor, &rec.ChildSummary, &rec.EmbedText, &blob, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		vec, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", rec.BlockID, err)
		}
		rec.Vector = vec
		rec.Descriptor = outline.DescriptorTag(descriptor)
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at for %s: %w", rec.BlockID, err)
		}
		rec.UpdatedAt = t
		records = append(records, rec)
	}
	return records, rows.Err()
}

// OwnerOfDocument returns the owner of the records stored for a document, or
// "" when none exist. The sync scheduler uses it to scope cleanup after the
// document tree itself is gone; it is an optional extension, not part of the
// Index interface.
func (s *SQLiteIndex) OwnerOfDocument(ctx context.Context, documentID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM embedding_records WHERE document_id = ? LIMIT 1`,
		documentID,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving owner for document %s: %w", documentID, err)
	}
	return owner, nil
}

func (s *SQLiteIndex) DocumentCounts(ctx context.Context, ownerID string) (map[string]int, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("counts require an owner: %w", svcerr.ErrMalformedInput)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, COUNT(*) FROM embedding_records WHERE owner_id = ? GROUP BY document_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var doc string
		var n int
		if err := rows.Scan(&doc, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[doc] = n
	}
	return counts, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}
