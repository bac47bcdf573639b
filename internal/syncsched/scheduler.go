// Package syncsched keeps embedding records consistent with live bullet
// content: debounced per-document syncs, diff-based re-embedding, capped
// retry with backoff, and a catch-up scan for documents that were edited
// while the engine was offline.
package syncsched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/svcerr"
)

const (
	defaultDebounce    = 2 * time.Second
	defaultMaxAttempts = 5
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
)

// Embedder turns built text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocState describes one document's sync health, surfaced as a non-blocking
// status indicator. Failures never block editing.
type DocState struct {
	DocumentID string
	Attempts   int
	Failed     bool
	LastError  string
	LastSyncAt time.Time
}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	Debounce    time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

// Scheduler debounces and executes document syncs. Syncs for different
// documents run concurrently; syncs for the same document are serialized so
// diff computations never race on the same records.
type Scheduler struct {
	index    simindex.Index
	embedder Embedder
	reader   editor.TreeReader

	debounce    time.Duration
	maxAttempts int
	baseBackoff time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	docLocks map[string]*sync.Mutex
	states   map[string]*DocState
	closed   bool

	wg sync.WaitGroup
}

// New creates a Scheduler over the given index, embedder, and editor boundary.
func New(index simindex.Index, embedder Embedder, reader editor.TreeReader, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	return &Scheduler{
		index:       index,
		embedder:    embedder,
		reader:      reader,
		debounce:    opts.Debounce,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		timers:      make(map[string]*time.Timer),
		docLocks:    make(map[string]*sync.Mutex),
		states:      make(map[string]*DocState),
	}
}

var _ editor.Listener = (*Scheduler)(nil)

// QueueSync schedules a debounced sync for the document. Repeated calls for
// the same document within the debounce window collapse into one actual sync,
// which makes enqueueing idempotent. An edit also resets any failed state so
// the document gets a fresh attempt budget.
func (s *Scheduler) QueueSync(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if st, ok := s.states[documentID]; ok && st.Failed {
		st.Failed = false
		st.Attempts = 0
		st.LastError = ""
	}

	if _, pending := s.timers[documentID]; pending {
		return
	}
	s.wg.Add(1)
	s.timers[documentID] = time.AfterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, documentID)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.run(context.Background(), documentID)
	})
}

// SyncNow bypasses the debounce and syncs the document immediately, also
// resetting any failed state.
func (s *Scheduler) SyncNow(ctx context.Context, documentID string) error {
	s.mu.Lock()
	if t, ok := s.timers[documentID]; ok {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, documentID)
	}
	if st, ok := s.states[documentID]; ok {
		st.Failed = false
		st.Attempts = 0
		st.LastError = ""
	}
	s.mu.Unlock()

	return s.run(ctx, documentID)
}

// CheckUnindexed scans the owner's documents for ones with zero or partial
// embedding records (typically after being offline) and queues them.
func (s *Scheduler) CheckUnindexed(ctx context.Context, ownerID string) error {
	docIDs, err := s.reader.DocumentIDs(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	counts, err := s.index.DocumentCounts(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("counting indexed records: %w", err)
	}

	queued := 0
	for _, docID := range docIDs {
		doc, err := s.reader.Document(ctx, docID)
		if err != nil {
			return fmt.Errorf("reading document %s: %w", docID, err)
		}
		if counts[docID] < len(outline.Flatten(doc)) {
			s.QueueSync(docID)
			queued++
		}
	}
	if queued > 0 {
		slog.Info("catch-up scan queued documents", "owner", ownerID, "count", queued)
	}
	return nil
}

// Status reports the sync state of every document the scheduler has touched.
func (s *Scheduler) Status() []DocState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DocState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	return out
}

// Close stops pending timers and waits for in-flight syncs.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// BlockCreated is part of editor.Listener.
func (s *Scheduler) BlockCreated(ctx context.Context, documentID, blockID string) {
	s.QueueSync(documentID)
}

// BlockUpdated is part of editor.Listener.
func (s *Scheduler) BlockUpdated(ctx context.Context, documentID, blockID string) {
	s.QueueSync(documentID)
}

// BlockDeleted propagates the tombstone to the index immediately, then
// queues a sync to reconcile the rest of the document.
func (s *Scheduler) BlockDeleted(ctx context.Context, documentID, blockID string) {
	doc, err := s.reader.Document(ctx, documentID)
	if err == nil {
		if delErr := s.index.DeleteByBlock(ctx, doc.OwnerID, documentID, blockID); delErr != nil {
			slog.Warn("sync: deleting tombstoned record failed", "document", documentID, "block", blockID, "error", delErr)
		}
	}
	s.QueueSync(documentID)
}

// DocumentDeleted drops every record for the document.
func (s *Scheduler) DocumentDeleted(ctx context.Context, documentID string) {
	s.mu.Lock()
	if t, ok := s.timers[documentID]; ok {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, documentID)
	}
	delete(s.states, documentID)
	s.mu.Unlock()

	if err := s.deleteDocumentRecords(ctx, documentID); err != nil {
		slog.Warn("sync: deleting records for removed document failed", "document", documentID, "error", err)
	}
}

// run executes one sync with capped exponential backoff, serialized against
// other syncs of the same document.
func (s *Scheduler) run(ctx context.Context, documentID string) error {
	lock := s.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	st := s.stateFor(documentID)

	var lastErr error
	for {
		s.mu.Lock()
		attempt := st.Attempts
		s.mu.Unlock()
		if attempt >= s.maxAttempts {
			break
		}

		err := s.syncOnce(ctx, documentID)

		s.mu.Lock()
		st.Attempts++
		if err == nil {
			st.Attempts = 0
			st.Failed = false
			st.LastError = ""
			st.LastSyncAt = time.Now().UTC()
			s.mu.Unlock()
			return nil
		}
		st.LastError = err.Error()
		s.mu.Unlock()
		lastErr = err

		if errors.Is(err, svcerr.ErrMalformedInput) || errors.Is(err, context.Canceled) {
			break
		}

		slog.Warn("sync attempt failed", "document", documentID, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(s.baseBackoff, attempt)):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("attempt budget exhausted")
	}
	s.mu.Lock()
	st.Failed = true
	s.mu.Unlock()
	slog.Error("sync failed permanently until next edit", "document", documentID, "error", lastErr)
	return fmt.Errorf("syncing document %s: %w", documentID, lastErr)
}

// syncOnce diffs the live document against stored records: bullets whose
// built text changed are re-embedded and upserted, removed bullets are
// deleted, unchanged bullets are left alone.
func (s *Scheduler) syncOnce(ctx context.Context, documentID string) error {
	doc, err := s.reader.Document(ctx, documentID)
	if err != nil {
		if errors.Is(err, editor.ErrNotFound) {
			return s.deleteDocumentRecords(ctx, documentID)
		}
		return fmt.Errorf("reading document: %w", err)
	}

	stored, err := s.index.ListByDocument(ctx, doc.OwnerID, documentID)
	if err != nil {
		return fmt.Errorf("listing stored records: %w", err)
	}
	existing := make(map[string]simindex.Record, len(stored))
	for _, rec := range stored {
		existing[rec.BlockID] = rec
	}

	live := make(map[string]bool)
	for _, ref := range outline.Flatten(doc) {
		live[ref.BlockID] = true

		embedText := outline.BuildEmbeddingText(ref.Context)
		if prev, ok := existing[ref.BlockID]; ok && prev.EmbedText == embedText {
			continue
		}

		vec, err := s.embedder.Embed(ctx, embedText)
		if err != nil {
			return fmt.Errorf("embedding block %s: %w", ref.BlockID, err)
		}
		rec := simindex.Record{
			OwnerID:      doc.OwnerID,
			DocumentID:   documentID,
			BlockID:      ref.BlockID,
			RawText:      ref.Context.Text,
			ContextPath:  ref.Context.ContextPath(),
			Descriptor:   ref.Context.Descriptor,
			ChildSummary: ref.Context.ChildSummary(),
			EmbedText:    embedText,
		}
		rec.Vector = vec
		if err := s.index.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("upserting block %s: %w", ref.BlockID, err)
		}
	}

	for blockID := range existing {
		if live[blockID] {
			continue
		}
		if err := s.index.DeleteByBlock(ctx, doc.OwnerID, documentID, blockID); err != nil {
			return fmt.Errorf("deleting removed block %s: %w", blockID, err)
		}
	}
	return nil
}

// deleteDocumentRecords removes a vanished document's records. The owner is
// unknown once the tree is gone, so ownership is recovered from the states
// the scheduler tracked; as a fallback the call is a no-op.
func (s *Scheduler) deleteDocumentRecords(ctx context.Context, documentID string) error {
	owner, err := s.ownerOf(ctx, documentID)
	if err != nil || owner == "" {
		return err
	}
	return s.index.DeleteByDocument(ctx, owner, documentID)
}

func (s *Scheduler) ownerOf(ctx context.Context, documentID string) (string, error) {
	doc, err := s.reader.Document(ctx, documentID)
	if err == nil {
		return doc.OwnerID, nil
	}
	if !errors.Is(err, editor.ErrNotFound) {
		return "", err
	}
	// Document is gone; the stored records still carry the owner.
	if lister, ok := s.index.(ownerLister); ok {
		return lister.OwnerOfDocument(ctx, documentID)
	}
	return "", nil
}

type ownerLister interface {
	OwnerOfDocument(ctx context.Context, documentID string) (string, error)
}

func (s *Scheduler) lockFor(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.docLocks[documentID] = lock
	}
	return lock
}

func (s *Scheduler) stateFor(documentID string) *DocState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[documentID]
	if !ok {
		st = &DocState{DocumentID: documentID}
		s.states[documentID] = st
	}
	return st
}

// backoff returns the capped exponential delay for the given attempt number.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
