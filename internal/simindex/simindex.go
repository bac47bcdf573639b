// Package simindex stores per-bullet embedding records and answers
// owner-scoped nearest-neighbor queries over them.
package simindex

import (
	"context"
	"time"

	"github.com/kalambet/notelink/internal/outline"
)

// Dimension is the fixed embedding dimension (text-embedding-3-small).
const Dimension = 1536

const (
	// DefaultThreshold is the minimum cosine similarity for a match.
	DefaultThreshold = 0.8
	// DefaultLimit caps the number of matches returned by Search.
	DefaultLimit = 5
)

// Record is one persisted embedding, keyed by (owner, document, block).
type Record struct {
	OwnerID      string
	DocumentID   string
	BlockID      string
	RawText      string
	ContextPath  string
	Descriptor   outline.DescriptorTag
	ChildSummary string
	EmbedText    string
	Vector       []float32
	UpdatedAt    time.Time
}

// Match is a search hit with its cosine similarity score in [0,1].
type Match struct {
	DocumentID   string
	BlockID      string
	RawText      string
	ContextPath  string
	Descriptor   outline.DescriptorTag
	ChildSummary string
	Score        float32
}

// SearchOptions tunes a Search call. Zero values select the defaults.
type SearchOptions struct {
	Threshold float32
	Limit     int
	// Descriptor restricts matches to records carrying this tag. An unknown
	// tag simply matches nothing.
	Descriptor outline.DescriptorTag
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Index is the similarity index consumed by the orchestrator, the sync
// scheduler, and the HTTP surface. Every operation is scoped to an owner;
// an empty owner is rejected, never widened to all users.
type Index interface {
	// Upsert inserts or replaces the record for its (owner, document, block) key.
	Upsert(ctx context.Context, rec Record) error

	// DeleteByBlock removes one bullet's record. Missing records are not an error.
	DeleteByBlock(ctx context.Context, ownerID, documentID, blockID string) error

	// DeleteByDocument removes every record for a document.
	DeleteByDocument(ctx context.Context, ownerID, documentID string) error

	// Search returns the owner's records scoring at or above the threshold,
	// ordered descending by score and capped at the limit.
	Search(ctx context.Context, ownerID string, vector []float32, opts SearchOptions) ([]Match, error)

	// ListByDocument returns the stored records for one document.
	ListByDocument(ctx context.Context, ownerID, documentID string) ([]Record, error)

	// DocumentCounts returns the number of stored records per document for
	// the owner. Used by the catch-up scan.
	DocumentCounts(ctx context.Context, ownerID string) (map[string]int, error)
}
