package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
)

// streamServer serves tokens as an OpenAI-compatible SSE completion stream.
func streamServer(t *testing.T, tokens []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range tokens {
			fmt.Fprintf(w,
				`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n",
				tok)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func TestGenerator_StreamsTokensInOrder(t *testing.T) {
	server := streamServer(t, []string{"He", "llo"})
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	var got []string
	full, err := gen.Generate(context.Background(), "say hello", func(token string) domain.Feedback {
		got = append(got, token)
		return domain.Continue
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if full != "Hello" {
		t.Errorf("full text = %q, want Hello", full)
	}
	if len(got) != 2 || got[0] != "He" || got[1] != "llo" {
		t.Errorf("tokens = %v, want [He llo]", got)
	}
}

func TestGenerator_StopFeedbackEndsStream(t *testing.T) {
	server := streamServer(t, []string{"a", "b", "c", "d"})
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	var count int
	full, err := gen.Generate(context.Background(), "count", func(_ string) domain.Feedback {
		count++
		if count == 2 {
			return domain.Stop
		}
		return domain.Continue
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if count != 2 {
		t.Errorf("callback ran %d times, want 2", count)
	}
	if full != "ab" {
		t.Errorf("full text = %q, want ab (accumulated before stop)", full)
	}
}

func TestGenerator_NilCallback(t *testing.T) {
	server := streamServer(t, []string{"x", "y"})
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	full, err := gen.Generate(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if full != "xy" {
		t.Errorf("full text = %q, want xy", full)
	}
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream broke","type":"server_error"}}`)
	}))
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	_, err := gen.Generate(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestGenerator_ContextCancelAborts(t *testing.T) {
	server := streamServer(t, []string{"a", "b"})
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gen.Generate(ctx, "late", nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
