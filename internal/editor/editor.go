// Package editor is the boundary to the note editor layer. The engine never
// persists note content itself; it reads live bullet trees through TreeReader
// and reacts to change notifications fanned out by Dispatcher.
package editor

import (
	"context"
	"errors"

	"github.com/kalambet/notelink/internal/outline"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// TreeReader is the synchronous read surface of the editor layer.
type TreeReader interface {
	// Document returns the live tree for the given document ID.
	Document(ctx context.Context, documentID string) (*outline.Document, error)

	// DocumentIDs lists the IDs of every document owned by the given user.
	DocumentIDs(ctx context.Context, ownerID string) ([]string, error)
}

// Listener receives editor change notifications. Implementations must be
// fast and non-blocking; slow work belongs behind a queue.
type Listener interface {
	BlockCreated(ctx context.Context, documentID, blockID string)
	BlockUpdated(ctx context.Context, documentID, blockID string)
	BlockDeleted(ctx context.Context, documentID, blockID string)
	DocumentDeleted(ctx context.Context, documentID string)
}

// Dispatcher fans editor notifications out to registered listeners in
// registration order.
type Dispatcher struct {
	listeners []Listener
}

func NewDispatcher(listeners ...Listener) *Dispatcher {
	return &Dispatcher{listeners: listeners}
}

// Register adds a listener. Not safe to call concurrently with dispatching;
// wire everything up before the first notification.
func (d *Dispatcher) Register(l Listener) {
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) BlockCreated(ctx context.Context, documentID, blockID string) {
	for _, l := range d.listeners {
		l.BlockCreated(ctx, documentID, blockID)
	}
}

func (d *Dispatcher) BlockUpdated(ctx context.Context, documentID, blockID string) {
	for _, l := range d.listeners {
		l.BlockUpdated(ctx, documentID, blockID)
	}
}

func (d *Dispatcher) BlockDeleted(ctx context.Context, documentID, blockID string) {
	for _, l := range d.listeners {
		l.BlockDeleted(ctx, documentID, blockID)
	}
}

func (d *Dispatcher) DocumentDeleted(ctx context.Context, documentID string) {
	for _, l := range d.listeners {
		l.DocumentDeleted(ctx, documentID)
	}
}
