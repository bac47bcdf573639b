package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/notelink/internal/concepts"
	"github.com/kalambet/notelink/internal/editor"
	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/portal"
	"github.com/kalambet/notelink/internal/ranking"
	"github.com/kalambet/notelink/internal/reorg"
	"github.com/kalambet/notelink/internal/simindex"
	"github.com/kalambet/notelink/internal/svcerr"
	"github.com/kalambet/notelink/internal/syncsched"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Embedder abstracts the embedding call for the API layer.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ConceptExtractor abstracts concept extraction for the API layer.
type ConceptExtractor interface {
	Extract(ctx context.Context, text string, maxConcepts int) ([]concepts.Concept, error)
}

// AIBudget meters AI-backed calls per user.
type AIBudget interface {
	ConsumeAIBudget(ownerID string, limit int, window time.Duration) (bool, error)
}

// Deps wires the HTTP surface to the engine components.
type Deps struct {
	Embedder  Embedder
	Extractor ConceptExtractor
	Index     simindex.Index
	Reorg     *reorg.Orchestrator
	Portals   *portal.Manager
	Links     *ranking.Searcher
	Recency   *ranking.RecencyStore
	Scheduler *syncsched.Scheduler
	Editor    *editor.Memory

	Budget     AIBudget
	RateLimit  int
	RateWindow time.Duration
	Tokens     map[string]string
}

// NewHandler returns the engine's HTTP API. All routes except /health
// require bearer auth; the token resolves to the owner scope.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Tokens))

		r.Post("/semantic-search", handleSemanticSearch(deps))
		r.Post("/ai/extract-concepts", handleExtractConcepts(deps))
		r.Post("/embeddings/batch", handleEmbedBatch(deps))

		r.Post("/reorganize", handleReorganize(deps))
		r.Post("/reorganize/apply", handleReorganizeApply(deps))

		r.Get("/links/search", handleLinkSearch(deps))
		r.Post("/links/access", handleLinkAccess(deps))

		r.Post("/portals", handleCreatePortal(deps))
		r.Get("/portals/{id}", handleResolvePortal(deps))
		r.Patch("/portals/{id}/collapsed", handleCollapsePortal(deps))

		r.Get("/sync/status", handleSyncStatus(deps))
		r.Post("/sync/now", handleSyncNow(deps))

		r.Put("/editor/documents/{id}", handlePutDocument(deps))
		r.Delete("/editor/documents/{id}", handleDeleteDocument(deps))
		r.Delete("/editor/documents/{id}/blocks/{blockID}", handleDeleteBlock(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type semanticSearchRequest struct {
	Query      string  `json:"query"`
	Descriptor string  `json:"descriptor,omitempty"`
	Threshold  float32 `json:"threshold,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

type matchResponse struct {
	DocumentID   string  `json:"document_id"`
	BlockID      string  `json:"block_id"`
	Text         string  `json:"text"`
	ContextPath  string  `json:"context_path,omitempty"`
	Descriptor   string  `json:"descriptor,omitempty"`
	ChildSummary string  `json:"child_summary,omitempty"`
	Score        float32 `json:"score"`
}

func handleSemanticSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req semanticSearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if !consumeBudget(w, deps, OwnerID(r.Context())) {
			return
		}

		vec, err := deps.Embedder.Embed(r.Context(), req.Query)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		matches, err := deps.Index.Search(r.Context(), OwnerID(r.Context()), vec, simindex.SearchOptions{
			Threshold:  req.Threshold,
			Limit:      req.Limit,
			Descriptor: outline.DescriptorTag(req.Descriptor),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]matchResponse, len(matches))
		for i, m := range matches {
			out[i] = matchResponse{
				DocumentID:   m.DocumentID,
				BlockID:      m.BlockID,
				Text:         m.RawText,
				ContextPath:  m.ContextPath,
				Descriptor:   string(m.Descriptor),
				ChildSummary: m.ChildSummary,
				Score:        m.Score,
			}
		}
		writeJSON(w, map[string]any{"matches": out})
	}
}

type extractRequest struct {
	Text        string `json:"text"`
	MaxConcepts int    `json:"max_concepts,omitempty"`
}

func handleExtractConcepts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !consumeBudget(w, deps, OwnerID(r.Context())) {
			return
		}

		extracted, err := deps.Extractor.Extract(r.Context(), req.Text, req.MaxConcepts)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if extracted == nil {
			extracted = []concepts.Concept{}
		}
		writeJSON(w, map[string]any{"concepts": extracted})
	}
}

type embedBatchEntry struct {
	DocumentID      string `json:"document_id"`
	BlockID         string `json:"block_id"`
	BulletText      string `json:"bullet_text"`
	ContextPath     string `json:"context_path,omitempty"`
	DescriptorType  string `json:"descriptor_type,omitempty"`
	ChildrenSummary string `json:"children_summary,omitempty"`
}

type embedBatchRequest struct {
	Embeddings []embedBatchEntry `json:"embeddings"`
}

type embedBatchResult struct {
	DocumentID string `json:"document_id"`
	BlockID    string `json:"block_id"`
	Stored     bool   `json:"stored"`
	Error      string `json:"error,omitempty"`
}

// handleEmbedBatch upserts one embedding record per entry for the calling
// user. Entries are independent: a failing entry is reported in its result
// and does not abort the rest of the batch.
func handleEmbedBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embedBatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Embeddings) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "embeddings is required and must not be empty")
			return
		}
		if !consumeBudget(w, deps, OwnerID(r.Context())) {
			return
		}

		results := make([]embedBatchResult, len(req.Embeddings))
		for i, e := range req.Embeddings {
			results[i] = embedBatchResult{DocumentID: e.DocumentID, BlockID: e.BlockID}
			if e.DocumentID == "" || e.BlockID == "" || e.BulletText == "" {
				results[i].Error = "document_id, block_id, and bullet_text are required"
				continue
			}

			embedText := outline.BuildEmbeddingText(batchEntryContext(e))
			vec, err := deps.Embedder.Embed(r.Context(), embedText)
			if err != nil {
				results[i].Error = err.Error()
				continue
			}
			rec := simindex.Record{
				OwnerID:      OwnerID(r.Context()),
				DocumentID:   e.DocumentID,
				BlockID:      e.BlockID,
				RawText:      e.BulletText,
				ContextPath:  e.ContextPath,
				Descriptor:   outline.DescriptorTag(e.DescriptorType),
				ChildSummary: e.ChildrenSummary,
				EmbedText:    embedText,
				Vector:       vec,
			}
			if err := deps.Index.Upsert(r.Context(), rec); err != nil {
				results[i].Error = err.Error()
				continue
			}
			results[i].Stored = true
		}
		writeJSON(w, map[string]any{"results": results})
	}
}

// batchEntryContext rebuilds the bullet context from a batch entry so the
// stored embed text matches what the sync scheduler derives for the same
// bullet from the live tree.
func batchEntryContext(e embedBatchEntry) outline.BulletContext {
	c := outline.BulletContext{
		Text:       e.BulletText,
		Descriptor: outline.DescriptorTag(e.DescriptorType),
	}
	if e.ContextPath != "" {
		parts := strings.Split(e.ContextPath, " > ")
		for i := len(parts) - 1; i >= 0; i-- {
			c.Ancestors = append(c.Ancestors, parts[i])
		}
	}
	if e.ChildrenSummary != "" {
		c.ChildSummaries = strings.Split(e.ChildrenSummary, ", ")
	}
	return c
}

type reorganizeRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

type suggestionResponse struct {
	Concept concepts.Concept `json:"concept"`
	Match   matchResponse    `json:"match"`
}

func handleReorganize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reorganizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}
		doc, err := deps.Editor.Document(r.Context(), req.DocumentID)
		if err != nil || doc.OwnerID != OwnerID(r.Context()) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		// Without an explicit text override, reorganize what the editor
		// currently holds for the document.
		text := req.Text
		if text == "" {
			text = outline.PlainText(doc)
		}
		if !consumeBudget(w, deps, OwnerID(r.Context())) {
			return
		}

		suggestions, err := deps.Reorg.Suggest(r.Context(), OwnerID(r.Context()), text)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]suggestionResponse, len(suggestions))
		for i, s := range suggestions {
			out[i] = suggestionResponse{
				Concept: s.Concept,
				Match: matchResponse{
					DocumentID:  s.Candidate.DocumentID,
					BlockID:     s.Candidate.BlockID,
					Text:        s.Candidate.RawText,
					ContextPath: s.Candidate.ContextPath,
					Score:       s.Candidate.Score,
				},
			}
		}
		writeJSON(w, map[string]any{"suggestions": out})
	}
}

type applyRequest struct {
	DocumentID string `json:"document_id"`
	Accepted   []struct {
		Concept          concepts.Concept `json:"concept"`
		SourceDocumentID string           `json:"source_document_id"`
		SourceBlockID    string           `json:"source_block_id"`
	} `json:"accepted"`
}

type portalResponse struct {
	ID               string `json:"id"`
	DocumentID       string `json:"document_id"`
	SourceDocumentID string `json:"source_document_id"`
	SourceBlockID    string `json:"source_block_id"`
	Status           string `json:"status"`
	Collapsed        bool   `json:"collapsed"`
}

func handleReorganizeApply(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}

		accepted := make([]reorg.Suggestion, len(req.Accepted))
		for i, a := range req.Accepted {
			accepted[i] = reorg.Suggestion{
				Concept: a.Concept,
				Candidate: simindex.Match{
					DocumentID: a.SourceDocumentID,
					BlockID:    a.SourceBlockID,
				},
			}
		}

		created, err := deps.Reorg.Apply(r.Context(), OwnerID(r.Context()), req.DocumentID, accepted)
		if err != nil && len(created) == 0 {
			writeServiceError(w, err)
			return
		}

		out := make([]portalResponse, len(created))
		for i, p := range created {
			out[i] = toPortalResponse(p)
		}
		resp := map[string]any{"portals": out}
		if err != nil {
			resp["partial_error"] = err.Error()
		}
		writeJSON(w, resp)
	}
}

type linkCandidateResponse struct {
	DocumentID  string  `json:"document_id"`
	BlockID     string  `json:"block_id"`
	Text        string  `json:"text"`
	ContextPath string  `json:"context_path,omitempty"`
	Score       float64 `json:"score"`
	Frecency    int     `json:"frecency"`
}

func handleLinkSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		limit := parseIntParam(r, "limit", 0, 100)
		threshold := parseFloatParam(r, "threshold", 0, 100)

		candidates, err := deps.Links.Search(r.Context(), OwnerID(r.Context()), query, ranking.SearchOptions{
			Limit:     limit,
			Threshold: threshold,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]linkCandidateResponse, len(candidates))
		for i, c := range candidates {
			out[i] = linkCandidateResponse{
				DocumentID:  c.DocumentID,
				BlockID:     c.BlockID,
				Text:        c.BulletText,
				ContextPath: c.ContextPath,
				Score:       c.Score,
				Frecency:    c.Frecency,
			}
		}
		writeJSON(w, map[string]any{"candidates": out})
	}
}

type linkAccessRequest struct {
	DocumentID  string `json:"document_id"`
	BlockID     string `json:"block_id"`
	Text        string `json:"text"`
	ContextPath string `json:"context_path,omitempty"`
}

func handleLinkAccess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req linkAccessRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DocumentID == "" || req.BlockID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id and block_id are required")
			return
		}

		err := deps.Recency.RecordAccess(r.Context(), OwnerID(r.Context()), req.DocumentID, req.BlockID, req.Text, req.ContextPath)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

type createPortalRequest struct {
	DocumentID       string `json:"document_id"`
	SourceDocumentID string `json:"source_document_id"`
	SourceBlockID    string `json:"source_block_id"`
}

func handleCreatePortal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPortalRequest
		if !decodeBody(w, r, &req) {
			return
		}

		p, err := deps.Portals.Create(r.Context(), OwnerID(r.Context()), req.DocumentID, req.SourceDocumentID, req.SourceBlockID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, toPortalResponse(p))
	}
}

type resolvedPortalResponse struct {
	Portal  portalResponse `json:"portal"`
	Content *struct {
		Text           string   `json:"text"`
		ContextPath    string   `json:"context_path,omitempty"`
		ChildSummaries []string `json:"child_summaries,omitempty"`
	} `json:"content"`
}

func handleResolvePortal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, content, err := deps.Portals.Resolve(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		// Portals from other owners are indistinguishable from missing ones.
		if p.OwnerID != OwnerID(r.Context()) {
			httpError(w, http.StatusNotFound, "not_found", "portal not found")
			return
		}

		resp := resolvedPortalResponse{Portal: toPortalResponse(p)}
		if content != nil {
			resp.Content = &struct {
				Text           string   `json:"text"`
				ContextPath    string   `json:"context_path,omitempty"`
				ChildSummaries []string `json:"child_summaries,omitempty"`
			}{
				Text:           content.Text,
				ContextPath:    content.ContextPath,
				ChildSummaries: content.ChildSummaries,
			}
		}
		writeJSON(w, resp)
	}
}

type collapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

func handleCollapsePortal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req collapseRequest
		if !decodeBody(w, r, &req) {
			return
		}

		p, _, err := deps.Portals.Resolve(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if p.OwnerID != OwnerID(r.Context()) {
			httpError(w, http.StatusNotFound, "not_found", "portal not found")
			return
		}

		if err := deps.Portals.SetCollapsed(r.Context(), id, req.Collapsed); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"collapsed": req.Collapsed})
	}
}

type docStateResponse struct {
	DocumentID string `json:"document_id"`
	Attempts   int    `json:"attempts"`
	Failed     bool   `json:"failed"`
	LastError  string `json:"last_error,omitempty"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
}

func handleSyncStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := deps.Scheduler.Status()
		out := make([]docStateResponse, len(states))
		for i, st := range states {
			out[i] = docStateResponse{
				DocumentID: st.DocumentID,
				Attempts:   st.Attempts,
				Failed:     st.Failed,
				LastError:  st.LastError,
			}
			if !st.LastSyncAt.IsZero() {
				out[i].LastSyncAt = st.LastSyncAt.UTC().Format(time.RFC3339)
			}
		}
		writeJSON(w, map[string]any{"documents": out})
	}
}

type syncNowRequest struct {
	DocumentID string `json:"document_id"`
}

func handleSyncNow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncNowRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}
		if !ownsDocument(deps, r, req.DocumentID) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}

		if err := deps.Scheduler.SyncNow(r.Context(), req.DocumentID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "synced"})
	}
}

type bulletPayload struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Descriptor string          `json:"descriptor,omitempty"`
	Children   []bulletPayload `json:"children,omitempty"`
}

type putDocumentRequest struct {
	Title   string          `json:"title"`
	Bullets []bulletPayload `json:"bullets"`
}

func handlePutDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req putDocumentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		// Re-titling a document another user owns must not be possible.
		if existing, err := deps.Editor.Document(r.Context(), id); err == nil && existing.OwnerID != OwnerID(r.Context()) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}

		doc := &outline.Document{
			ID:      id,
			OwnerID: OwnerID(r.Context()),
			Title:   req.Title,
			Bullets: toBullets(req.Bullets),
		}
		deps.Editor.PutDocument(r.Context(), doc)
		writeJSON(w, map[string]string{"status": "stored"})
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !ownsDocument(deps, r, id) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}

		deps.Editor.DeleteDocument(r.Context(), id)
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleDeleteBlock(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		blockID := chi.URLParam(r, "blockID")
		if !ownsDocument(deps, r, id) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}

		deps.Editor.DeleteBlock(r.Context(), id, blockID)
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func toBullets(payload []bulletPayload) []*outline.Bullet {
	if len(payload) == 0 {
		return nil
	}
	out := make([]*outline.Bullet, len(payload))
	for i, b := range payload {
		out[i] = &outline.Bullet{
			ID:         b.ID,
			Text:       b.Text,
			Descriptor: outline.DescriptorTag(b.Descriptor),
			Children:   toBullets(b.Children),
		}
	}
	return out
}

func toPortalResponse(p *portal.Portal) portalResponse {
	return portalResponse{
		ID:               p.ID,
		DocumentID:       p.DocumentID,
		SourceDocumentID: p.SourceDocumentID,
		SourceBlockID:    p.SourceBlockID,
		Status:           string(p.Status),
		Collapsed:        p.Collapsed,
	}
}

func ownsDocument(deps Deps, r *http.Request, documentID string) bool {
	doc, err := deps.Editor.Document(r.Context(), documentID)
	return err == nil && doc.OwnerID == OwnerID(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func consumeBudget(w http.ResponseWriter, deps Deps, ownerID string) bool {
	if deps.Budget == nil || deps.RateLimit <= 0 {
		return true
	}
	ok, err := deps.Budget.ConsumeAIBudget(ownerID, deps.RateLimit, deps.RateWindow)
	if err != nil {
		writeServiceError(w, err)
		return false
	}
	if !ok {
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "AI request limit reached, retry later")
		return false
	}
	return true
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svcerr.ErrMalformedInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, svcerr.ErrUnauthorized):
		httpError(w, http.StatusForbidden, "authorization_error", "%v", err)
	case errors.Is(err, svcerr.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	case errors.Is(err, svcerr.ErrTimeout):
		httpError(w, http.StatusGatewayTimeout, "timeout_error", "%v", err)
	case errors.Is(err, svcerr.ErrExternal):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	case errors.Is(err, portal.ErrNotFound), errors.Is(err, editor.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseFloatParam(r *http.Request, key string, defaultVal, maxVal float64) float64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
