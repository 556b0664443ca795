// Package catalog implements product metadata access over the JSON document store.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/catalog"
)

// store is the consumer interface for metadata operations (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
}

// Repo implements usecase/retrieval.Catalog.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a catalog repository. Documents live at <keyPrefix>meta:<product_id>.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix}
}

func (r *Repo) key(productID string) string {
	return r.keyPrefix + "meta:" + productID
}

// GetMany fetches metadata for the given product IDs in one batch round-trip.
// IDs with no stored document are omitted from the result map.
func (r *Repo) GetMany(ctx context.Context, productIDs []string) (map[string]catalog.Product, error) {
	if len(productIDs) == 0 {
		return map[string]catalog.Product{}, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = r.key(id)
	}

	docs, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get metadata batch: %w: %w", domain.ErrMetadataUnavailable, err)
	}

	products := make(map[string]catalog.Product, len(productIDs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		var p catalog.Product
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w: %w", productIDs[i], domain.ErrMetadataUnavailable, err)
		}
		if p.ProductID == "" {
			p.ProductID = productIDs[i]
		}
		products[productIDs[i]] = p
	}

	return products, nil
}

// Upsert stores product metadata (ingest tooling).
func (r *Repo) Upsert(ctx context.Context, p catalog.Product) error {
	if p.ProductID == "" {
		return fmt.Errorf("product id is required")
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", p.ProductID, err)
	}

	if err := r.store.JSONSet(ctx, r.key(p.ProductID), "$", doc); err != nil {
		return fmt.Errorf("set metadata %s: %w: %w", p.ProductID, domain.ErrMetadataUnavailable, err)
	}
	return nil
}
