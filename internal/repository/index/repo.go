// Package index implements per-modality KNN retrieval on top of the vector index.
package index

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lookbook-ai/lookbook/internal/db"
	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
	"github.com/lookbook-ai/lookbook/internal/domain/search/hit"
	"github.com/lookbook-ai/lookbook/internal/domain/search/modality"
	"github.com/lookbook-ai/lookbook/internal/metrics"
)

// Vector field per modality in the product index.
var vectorFields = map[modality.Modality]string{
	modality.Text:  "text_vector",
	modality.Image: "image_vector",
}

var returnFields = []string{
	"product_id", "description", "image_path",
	"brand", "category", "sub_category", "color",
}

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/retrieval.Searcher.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
}

// New creates an index repository. keyPrefix is the document key prefix
// stripped from index entry keys to recover product IDs.
func New(s store, indexName, keyPrefix string) *Repo {
	return &Repo{store: s, indexName: indexName, keyPrefix: keyPrefix}
}

// Search performs a KNN search over one modality sub-space of the product
// index and returns up to topK hits ordered by descending similarity.
func (r *Repo) Search(
	ctx context.Context, m modality.Modality,
	vector []float32, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	field, ok := vectorFields[m]
	if !ok {
		return nil, fmt.Errorf("%w: unknown modality %q", domain.ErrInvalidRequest, m)
	}
	if err := validateVector(vector); err != nil {
		return nil, fmt.Errorf("%s vector: %w", m, err)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidRequest, topK)
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName,
		VectorField:  field,
		Filters:      filters,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	}

	start := time.Now()
	sr, err := r.store.SearchKNN(ctx, q)
	metrics.SearchRequestDuration.WithLabelValues(m.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s search: %w: %w", m, domain.ErrSearchUnavailable, err)
	}

	return r.parseHits(sr), nil
}

func (r *Repo) parseHits(sr *db.SearchResult) []hit.Hit {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	hits := make([]hit.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		docID := strings.TrimPrefix(entry.Key, r.keyPrefix)

		payload := hit.Payload{
			ProductID:   entry.Fields["product_id"],
			Description: entry.Fields["description"],
			ImagePath:   entry.Fields["image_path"],
			Brand:       entry.Fields["brand"],
			Category:    entry.Fields["category"],
			SubCategory: entry.Fields["sub_category"],
			Color:       entry.Fields["color"],
		}
		if payload.ProductID == "" {
			payload.ProductID = docID
		}

		hits = append(hits, hit.New(payload.ProductID, entry.Score, payload))
	}
	return hits
}

func validateVector(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrInvalidVector)
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite value at index %d", domain.ErrInvalidVector, i)
		}
	}
	return nil
}
