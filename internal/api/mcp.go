package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/notelink/internal/outline"
	"github.com/kalambet/notelink/internal/simindex"
)

// MCPDeps holds dependencies for the MCP server. MCP runs over stdio for a
// single local user, so the owner scope is fixed at construction instead of
// coming from a token. Tool calls draw from the same AI budget as the HTTP
// surface, metered against that fixed owner.
type MCPDeps struct {
	OwnerID   string
	Embedder  Embedder
	Extractor ConceptExtractor
	Index     simindex.Index

	Budget     AIBudget
	RateLimit  int
	RateWindow time.Duration
}

// consumeBudget charges one AI call to the MCP owner. A non-nil result is
// the error to return to the client.
func (d MCPDeps) consumeBudget() *mcp.CallToolResult {
	if d.Budget == nil || d.RateLimit <= 0 {
		return nil
	}
	ok, err := d.Budget.ConsumeAIBudget(d.OwnerID, d.RateLimit, d.RateWindow)
	if err != nil {
		return mcpError(fmt.Sprintf("checking AI budget failed: %v", err))
	}
	if !ok {
		return mcpError("AI request limit reached, retry later")
	}
	return nil
}

// NewMCPServer creates an MCP server exposing the engine's search and
// extraction tools to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"notelink",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("notelink — semantic linking engine for hierarchical notes: search bullets by meaning, extract concepts from text."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("semantic_search",
			mcp.WithDescription("Search the user's notes by meaning and return matching bullets with their context paths."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("descriptor", mcp.Description("Optional descriptor filter: What, Why, How, Pros, Cons")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSemanticSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("extract_concepts",
			mcp.WithDescription("Extract key concepts from a piece of text, each with a category."),
			mcp.WithString("text", mcp.Description("Text to analyze"), mcp.Required()),
			mcp.WithNumber("max_concepts", mcp.Description("Maximum number of concepts (default 5, max 10)")),
		),
		mcpExtractConcepts(deps),
	)

	return s
}

func mcpSemanticSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		descriptor := req.GetString("descriptor", "")
		limit := req.GetInt("limit", 0)

		if denied := deps.consumeBudget(); denied != nil {
			return denied, nil
		}
		vec, err := deps.Embedder.Embed(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("embedding query failed: %v", err)), nil
		}
		matches, err := deps.Index.Search(ctx, deps.OwnerID, vec, simindex.SearchOptions{
			Limit:      limit,
			Descriptor: outline.DescriptorTag(descriptor),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		type matchResult struct {
			DocumentID  string  `json:"document_id"`
			BlockID     string  `json:"block_id"`
			Text        string  `json:"text"`
			ContextPath string  `json:"context_path,omitempty"`
			Descriptor  string  `json:"descriptor,omitempty"`
			Score       float32 `json:"score"`
		}

		results := make([]matchResult, len(matches))
		for i, m := range matches {
			results[i] = matchResult{
				DocumentID:  m.DocumentID,
				BlockID:     m.BlockID,
				Text:        m.RawText,
				ContextPath: m.ContextPath,
				Descriptor:  string(m.Descriptor),
				Score:       m.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExtractConcepts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		maxConcepts := req.GetInt("max_concepts", 0)

		if denied := deps.consumeBudget(); denied != nil {
			return denied, nil
		}
		extracted, err := deps.Extractor.Extract(ctx, text, maxConcepts)
		if err != nil {
			return mcpError(fmt.Sprintf("extraction failed: %v", err)), nil
		}

		b, err := json.Marshal(extracted)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal concepts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
