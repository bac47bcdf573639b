package aiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/notelink/internal/svcerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:      srv.URL,
		EmbedModel:   "test-embed",
		ExtractModel: "test-chat",
		Timeout:      timeout,
	})
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}, 0)

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("got %d dims, want 3", len(vec))
	}
}

func TestEmbed_EmptyInputRejectedLocally(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, 0)

	_, err := c.Embed(context.Background(), "   ")
	if !errors.Is(err, svcerr.ErrMalformedInput) {
		t.Errorf("error = %v, want ErrMalformedInput", err)
	}
	if called {
		t.Error("empty input reached the network")
	}
}

func TestEmbed_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 0)

	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, svcerr.ErrExternal) {
		t.Errorf("error = %v, want ErrExternal", err)
	}
}

func TestEmbed_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"data":[{"embedding":[0.1]}]}`))
	}, 20*time.Millisecond)

	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, svcerr.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestChatJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}, 0)

	out, err := c.ChatJSON(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("ChatJSON: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("content = %q", out)
	}
}

func TestChatJSON_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}, 0)

	_, err := c.ChatJSON(context.Background(), "sys", "prompt")
	if !errors.Is(err, svcerr.ErrExternal) {
		t.Errorf("error = %v, want ErrExternal", err)
	}
}
