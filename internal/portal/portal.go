// Package portal owns cross-document references: their creation inside newly
// authored documents, staleness and orphan detection driven by editor
// notifications, and cascading cleanup when source documents disappear.
package portal

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested portal does not exist.
var ErrNotFound = errors.New("portal not found")

// Status is a portal's synchronization state.
type Status string

const (
	// StatusSynced means the portal's resolved content matches its source.
	StatusSynced Status = "synced"
	// StatusStale is a short-lived transitional state during an in-flight
	// source update. It is never persisted across a process boundary.
	StatusStale Status = "stale"
	// StatusOrphaned is terminal: the source block no longer exists. There
	// is no transition out of it; restoring the link means a new portal.
	StatusOrphaned Status = "orphaned"
)

// Portal is a block in one document that references and displays content
// owned by a block in another (or the same) document. SourceDocumentID and
// SourceBlockID are fixed at creation and never reassigned.
type Portal struct {
	ID               string
	OwnerID          string
	DocumentID       string
	SourceDocumentID string
	SourceBlockID    string
	Status           Status
	Collapsed        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Content is a portal's resolved source content. Consumers must treat a nil
// Content as valid input, not an error: orphaned portals resolve to nothing.
type Content struct {
	Text           string
	ContextPath    string
	ChildSummaries []string
}
