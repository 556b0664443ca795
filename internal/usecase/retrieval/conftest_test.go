package retrieval

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/catalog"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
	"github.com/lookbook-ai/lookbook/internal/domain/search/hit"
	"github.com/lookbook-ai/lookbook/internal/domain/search/modality"
)

// mockPlanner implements Planner for tests.
type mockPlanner struct {
	planFn func(ctx context.Context, message string, hasImage bool) (string, error)
	calls  int
}

func (m *mockPlanner) Plan(ctx context.Context, message string, hasImage bool) (string, error) {
	m.calls++
	if m.planFn != nil {
		return m.planFn(ctx, message, hasImage)
	}
	return `{"intermediate_queries":[{"query":"` + message + `","weight":1.0}],"weights":{"text":1.0,"image":0.0},"top_k":10,"filters":{}}`, nil
}

// mockEmbedder implements Embedder for tests.
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
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	m.imageCalls++
	if m.embedImageFn != nil {
		return m.embedImageFn(ctx, image)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.3, 0.4}}, nil
}

// mockSearcher implements Searcher for tests.
type mockSearcher struct {
	searchFn func(ctx context.Context, m modality.Modality, vector []float32, topK int, filters filter.Expression) ([]hit.Hit, error)
}

func (m *mockSearcher) Search(
	ctx context.Context, mod modality.Modality,
	vector []float32, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, mod, vector, topK, filters)
	}
	return nil, nil
}

// mockCatalog implements Catalog for tests.
type mockCatalog struct {
	getManyFn func(ctx context.Context, productIDs []string) (map[string]catalog.Product, error)
}

func (m *mockCatalog) GetMany(ctx context.Context, productIDs []string) (map[string]catalog.Product, error) {
	if m.getManyFn != nil {
		return m.getManyFn(ctx, productIDs)
	}
	return map[string]catalog.Product{}, nil
}

type testDeps struct {
	planner  *mockPlanner
	embedder *mockEmbedder
	searcher *mockSearcher
	catalog  *mockCatalog
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		planner:  &mockPlanner{},
		embedder: &mockEmbedder{},
		searcher: &mockSearcher{},
		catalog:  &mockCatalog{},
	}
	cfg := Config{
		DefaultTopK:     10,
		PlannerTimeout:  time.Second,
		EmbedTimeout:    time.Second,
		SearchTimeout:   time.Second,
		MetadataTimeout: time.Second,
	}
	svc := New(deps.planner, deps.embedder, deps.searcher, deps.catalog, cfg, zap.NewNop())
	return svc, deps
}
