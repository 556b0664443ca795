// Package modality defines the two query channels of the product index.
package modality

// Modality is one of the index's named vector sub-spaces.
type Modality string

const (
	// Text is the text-embedding sub-space.
	Text Modality = "text"
	// Image is the image-embedding sub-space.
	Image Modality = "image"
)

// Valid reports whether m names a known sub-space.
func (m Modality) Valid() bool {
	return m == Text || m == Image
}

func (m Modality) String() string { return string(m) }
