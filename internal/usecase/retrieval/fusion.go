package retrieval

import (
	"sort"

	"github.com/lookbook-ai/lookbook/internal/domain/search/hit"
)

// Fused is one candidate after weighted score combination.
type Fused struct {
	ProductID string
	Score     float64
}

// fuse merges the per-modality rankings by weighted linear combination.
// A product absent from one list contributes 0 for that side; on duplicate
// product IDs within one list the later occurrence wins. The output is sorted
// by score descending with ties broken by ascending product ID, truncated to
// topK. Empty inputs produce an empty (non-nil error-free) result.
func fuse(textHits, imageHits []hit.Hit, wText, wImage float64, topK int) []Fused {
	textScores := collapse(textHits)
	imageScores := collapse(imageHits)

	fused := make([]Fused, 0, len(textScores)+len(imageScores))
	seen := make(map[string]struct{}, len(textScores)+len(imageScores))

	for id, t := range textScores {
		score := wText * t
		if i, ok := imageScores[id]; ok {
			score += wImage * i
		}
		fused = append(fused, Fused{ProductID: id, Score: score})
		seen[id] = struct{}{}
	}
	for id, i := range imageScores {
		if _, ok := seen[id]; ok {
			continue
		}
		fused = append(fused, Fused{ProductID: id, Score: wImage * i})
	}

	sort.Slice(fused, func(a, b int) bool {
		if fused[a].Score != fused[b].Score {
			return fused[a].Score > fused[b].Score
		}
		return fused[a].ProductID < fused[b].ProductID
	})

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// collapse folds a ranked list into product_id -> score, later entries winning.
func collapse(hits []hit.Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID()] = h.Score()
	}
	return scores
}
