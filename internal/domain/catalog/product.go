// Package catalog defines the metadata-store view of a product.
package catalog

// Product is the metadata document stored per product, keyed by ProductID.
// Field values here take precedence over index payload values at enrichment.
type Product struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	Color       string `json:"color,omitempty"`
}
