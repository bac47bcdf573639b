// Package concepts pulls candidate concepts out of free note text using an
// external language model.
package concepts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/notelink/internal/svcerr"
)

const (
	// DefaultMaxConcepts bounds how many concepts one extraction returns.
	DefaultMaxConcepts = 5
	// MaxConceptsCeiling is the hard upper bound a caller may request.
	MaxConceptsCeiling = 10

	extractionTimeout = 10 * time.Second
)

// Concept is a single extracted concept with an optional category.
type Concept struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Chatter is the LLM call the extractor depends on.
type Chatter interface {
	ChatJSON(ctx context.Context, system, prompt string) (string, error)
}

// Extractor wraps the LLM call with input validation, a timeout, and robust
// response parsing. Failures surface as typed errors, never as a silently
// empty result.
type Extractor struct {
	client Chatter
}

// NewExtractor creates an Extractor using the given LLM client.
func NewExtractor(client Chatter) *Extractor {
	return &Extractor{client: client}
}

// Extract returns up to maxConcepts concepts from the text, in the order the
// model produced them. maxConcepts <= 0 selects the default.
func (e *Extractor) Extract(ctx context.Context, text string, maxConcepts int) ([]Concept, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty extraction input: %w", svcerr.ErrMalformedInput)
	}
	if maxConcepts <= 0 {
		maxConcepts = DefaultMaxConcepts
	}
	if maxConcepts > MaxConceptsCeiling {
		maxConcepts = MaxConceptsCeiling
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.client.ChatJSON(ctx, extractionSystemPrompt, extractionPrompt(text, maxConcepts))
	if err != nil {
		return nil, fmt.Errorf("concept extraction: %w", err)
	}

	parsed, err := parseConcepts(raw)
	if err != nil {
		return nil, fmt.Errorf("concept extraction: %v: %w", err, svcerr.ErrExternal)
	}
	if len(parsed) > maxConcepts {
		parsed = parsed[:maxConcepts]
	}
	return parsed, nil
}

// parseConcepts extracts the concepts array from an LLM response. Models
// occasionally wrap JSON in markdown code fences or prepend filler, so the
// parser strips fences and cuts the substring between the first { and the
// last } before unmarshaling.
func parseConcepts(resp string) ([]Concept, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var payload struct {
		Concepts []Concept `json:"concepts"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling concepts: %w", err)
	}

	out := make([]Concept, 0, len(payload.Concepts))
	for _, c := range payload.Concepts {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
