package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lookbook-ai/lookbook/internal/db"
	"github.com/lookbook-ai/lookbook/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	data map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

// mockEmbedder counts calls to the inner embedder.
type mockEmbedder struct {
	embedTextFn  func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	embedImageFn func(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
	textCalls    int
	imageCalls   int
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.textCalls++
	if m.embedTextFn != nil {
		return m.embedTextFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 7}, nil
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	m.imageCalls++
	if m.embedImageFn != nil {
		return m.embedImageFn(ctx, image)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.3, 0.4}, TotalTokens: 0}, nil
}

func newTestCache(t *testing.T) (*CachedEmbedder, *mockEmbedder, *mockStore) {
	t.Helper()
	inner := &mockEmbedder{}
	ms := newMockStore()
	c := New(inner, ms, "lookbook:", time.Hour, nil, zap.NewNop())
	return c, inner, ms
}
