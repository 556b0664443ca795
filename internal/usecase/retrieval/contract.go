package retrieval

import (
	"context"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/catalog"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
	"github.com/lookbook-ai/lookbook/internal/domain/search/hit"
	"github.com/lookbook-ai/lookbook/internal/domain/search/modality"
)

// Planner produces a raw retrieval plan for a user message. The output is
// untrusted LLM text; plan.Normalize owns repairing it.
type Planner interface {
	Plan(ctx context.Context, message string, hasImage bool) (string, error)
}

// Embedder vectorizes text and images into the shared embedding space.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

// Searcher runs a KNN query against one modality sub-space of the index.
type Searcher interface {
	Search(
		ctx context.Context, m modality.Modality,
		vector []float32, topK int, filters filter.Expression,
	) ([]hit.Hit, error)
}

// Catalog reads product metadata in batches.
type Catalog interface {
	GetMany(ctx context.Context, productIDs []string) (map[string]catalog.Product, error)
}
