package domain

import "context"

// Embedder is the shared multi-modal vectorization contract between layers.
// Both modalities map into the same fixed-dimensionality vector space.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
