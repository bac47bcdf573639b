// Package aiclient talks to an OpenAI-compatible AI provider over HTTP:
// embeddings for the similarity index and JSON-mode chat completions for
// concept extraction. Both calls are treated as untrusted and possibly slow;
// every request carries a deadline and failures map onto the svcerr kinds.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/notelink/internal/svcerr"
)

const defaultTimeout = 15 * time.Second

// Client communicates with the AI provider.
type Client struct {
	baseURL      string
	apiKey       string
	embedModel   string
	extractModel string
	timeout      time.Duration
	httpClient   *http.Client
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	EmbedModel   string
	ExtractModel string
	Timeout      time.Duration
}

// New creates a Client for the given provider.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		embedModel:   opts.EmbedModel,
		extractModel: opts.ExtractModel,
		timeout:      timeout,
		httpClient:   &http.Client{},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty embedding input: %w", svcerr.ErrMalformedInput)
	}

	var result embedResponse
	err := c.postJSON(ctx, "/v1/embeddings", embedRequest{Model: c.embedModel, Input: text}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("provider returned no embedding: %w", svcerr.ErrExternal)
	}
	return result.Data[0].Embedding, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatJSON sends a system+user prompt pair in JSON mode and returns the raw
// response content. The caller is responsible for parsing.
func (c *Client) ChatJSON(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: c.extractModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFmt{Type: "json_object"},
	}

	var result chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices: %w", svcerr.ErrExternal)
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", path, svcerr.ErrTimeout)
		}
		return fmt.Errorf("%s: %v: %w", path, err, svcerr.ErrExternal)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode, strings.TrimSpace(string(snippet)), svcerr.ErrExternal)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %v: %w", path, err, svcerr.ErrExternal)
	}
	return nil
}
