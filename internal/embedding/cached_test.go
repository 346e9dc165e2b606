package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/db"
	"github.com/calyx-labs/ragline/internal/domain"
)

type mockKV struct {
	getFunc func(ctx context.Context, key string) ([]byte, error)
	setFunc func(ctx context.Context, key string, value []byte) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value)
	}
	return nil
}

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls     int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 5}, nil
}

func TestCachedEmbedder_MissThenHit(t *testing.T) {
	kv := map[string][]byte{}
	store := &mockKV{
		getFunc: func(_ context.Context, key string) ([]byte, error) {
			if v, ok := kv[key]; ok {
				return v, nil
			}
			return nil, db.ErrKeyNotFound
		},
		setFunc: func(_ context.Context, key string, value []byte) error {
			kv[key] = value
			return nil
		},
	}
	inner := &mockEmbedder{}
	c := NewCachedEmbedder(inner, store, "test-model", "ragline:", zap.NewNop())

	first, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	second, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1 (second call must hit cache)", inner.calls)
	}
	if len(second.Embedding) != len(first.Embedding) {
		t.Errorf("cached embedding length = %d, want %d", len(second.Embedding), len(first.Embedding))
	}
	if second.TotalTokens != first.TotalTokens {
		t.Errorf("cached tokens = %d, want %d", second.TotalTokens, first.TotalTokens)
	}
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	var keys []string
	store := &mockKV{
		getFunc: func(_ context.Context, key string) ([]byte, error) {
			keys = append(keys, key)
			return nil, db.ErrKeyNotFound
		},
	}

	a := NewCachedEmbedder(&mockEmbedder{}, store, "model-a", "ragline:", zap.NewNop())
	b := NewCachedEmbedder(&mockEmbedder{}, store, "model-b", "ragline:", zap.NewNop())

	if _, err := a.Embed(context.Background(), "same text"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Embed(context.Background(), "same text"); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Errorf("same text under different models must use different keys: %v", keys)
	}
}

func TestCachedEmbedder_CorruptEntryReembeds(t *testing.T) {
	store := &mockKV{
		getFunc: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("{not json"), nil
		},
	}
	inner := &mockEmbedder{}
	c := NewCachedEmbedder(inner, store, "m", "ragline:", zap.NewNop())

	res, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(res.Embedding) == 0 {
		t.Error("expected fresh embedding")
	}
}

func TestCachedEmbedder_CacheErrorsDegradeToInner(t *testing.T) {
	store := &mockKV{
		getFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("backend down")
		},
		setFunc: func(_ context.Context, _ string, _ []byte) error {
			return errors.New("backend down")
		},
	}
	inner := &mockEmbedder{}
	c := NewCachedEmbedder(inner, store, "m", "ragline:", zap.NewNop())

	res, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed() error = %v, cache failures must not surface", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("embedding = %v", res.Embedding)
	}
}

func TestCachedEmbedder_InnerErrorPropagates(t *testing.T) {
	inner := &mockEmbedder{
		embedFunc: func(_ context.Context, _ string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, domain.ErrEmbeddingProvider
		},
	}
	c := NewCachedEmbedder(inner, &mockKV{}, "m", "ragline:", zap.NewNop())

	_, err := c.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("error = %v, want ErrEmbeddingProvider", err)
	}
}

func TestCachedEmbedder_StoredValueRoundTrips(t *testing.T) {
	var stored []byte
	store := &mockKV{
		setFunc: func(_ context.Context, _ string, value []byte) error {
			stored = value
			return nil
		},
	}
	c := NewCachedEmbedder(&mockEmbedder{}, store, "m", "ragline:", zap.NewNop())

	if _, err := c.Embed(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	var decoded domain.EmbeddingResult
	if err := json.Unmarshal(stored, &decoded); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if len(decoded.Embedding) != 3 {
		t.Errorf("decoded embedding = %v", decoded.Embedding)
	}
}
