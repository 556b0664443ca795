package domain

import "errors"

// Sentinel errors for the retrieval pipeline. Each external stage fails with
// its own kind so the transport layer can name the failing stage.
var (
	// ErrInvalidRequest signals a request carrying neither message nor image.
	ErrInvalidRequest = errors.New("message or image is required")
	// ErrPlanParse signals planner output with no recoverable plan content.
	ErrPlanParse = errors.New("plan parse failed")
	// ErrPlannerUnavailable signals a planner transport failure.
	ErrPlannerUnavailable = errors.New("planner unavailable")
	// ErrInvalidVector signals an empty or malformed embedding vector.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrSearchUnavailable signals that the vector index rejected or failed a query.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrMetadataUnavailable signals a metadata store failure.
	ErrMetadataUnavailable = errors.New("metadata store unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
