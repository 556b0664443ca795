package retrieval

import (
	"fmt"
	"strings"

	"github.com/lookbook-ai/lookbook/internal/domain/plan"
)

// buildAnswer synthesizes a short assistant message from the plan.
func buildAnswer(p plan.Plan, resultCount int) string {
	if resultCount == 0 {
		return "I could not find any matching products for this request."
	}

	queries := p.Queries()
	names := make([]string, 0, 2)
	for _, q := range queries {
		if s := strings.TrimSpace(q.Query()); s != "" {
			names = append(names, s)
		}
		if len(names) == 2 {
			break
		}
	}

	var b strings.Builder
	if len(names) > 0 {
		fmt.Fprintf(&b, "I searched using: %s. ", strings.Join(names, ", "))
	} else {
		b.WriteString("I searched using your image. ")
	}
	fmt.Fprintf(&b, "Weighting: text=%.1f, image=%.1f. ", p.TextWeight(), p.ImageWeight())
	b.WriteString("Here are the closest matches.")
	return b.String()
}
