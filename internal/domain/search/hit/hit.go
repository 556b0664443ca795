// Package hit defines the canonical scored hit produced at the index boundary.
// Everything downstream of the searcher works with this one shape.
package hit

// Payload carries the product attributes stored alongside the indexed vectors.
type Payload struct {
	ProductID   string
	Description string
	ImagePath   string
	Brand       string
	Category    string
	SubCategory string
	Color       string
}

// Hit is a single search result from one modality sub-space.
type Hit struct {
	id      string
	score   float64
	payload Payload
}

// New creates a hit.
func New(id string, score float64, payload Payload) Hit {
	return Hit{id: id, score: score, payload: payload}
}

// ID returns the business product id. The searcher resolves it at the index
// boundary (payload product_id, falling back to the document key suffix), so
// fusion and metadata lookup key on the same identifier.
func (h Hit) ID() string { return h.id }

// Score returns the similarity score.
func (h Hit) Score() float64 { return h.score }

// Payload returns the product attributes carried by the hit.
func (h Hit) Payload() Payload { return h.payload }
