// Package plan turns untrusted planner output into a canonical retrieval plan.
// A normalized Plan is always structurally complete: non-empty query list,
// finite weights, top_k inside [MinTopK, MaxTopK], filters as a plain map.
package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lookbook-ai/lookbook/internal/domain"
)

// TopK bounds enforced after normalization, regardless of planner input.
const (
	MinTopK     = 1
	MaxTopK     = 50
	DefaultTopK = 10
)

const (
	defaultQueryWeight = 1.0
	defaultTextWeight  = 1.0
	// Weight the image channel gets when the planner omitted weights but the
	// request carries an image.
	fallbackImageWeight = 0.3
)

// WeightedQuery is a single intermediate query proposed by the planner.
type WeightedQuery struct {
	query  string
	weight float64
}

// NewWeightedQuery creates a weighted query entry.
func NewWeightedQuery(query string, weight float64) WeightedQuery {
	return WeightedQuery{query: query, weight: weight}
}

// Query returns the query text.
func (q WeightedQuery) Query() string { return q.query }

// Weight returns the query weight.
func (q WeightedQuery) Weight() float64 { return q.weight }

// Plan is the canonical, fully validated retrieval request shape.
type Plan struct {
	queries     []WeightedQuery
	textWeight  float64
	imageWeight float64
	topK        int
	filters     map[string]any
}

// Reconstruct assembles a Plan from already-normalized parts (repositories, tests).
func Reconstruct(
	queries []WeightedQuery, textWeight, imageWeight float64,
	topK int, filters map[string]any,
) Plan {
	if filters == nil {
		filters = map[string]any{}
	}
	return Plan{
		queries:     queries,
		textWeight:  textWeight,
		imageWeight: imageWeight,
		topK:        ClampTopK(topK),
		filters:     filters,
	}
}

// Queries returns the ordered intermediate queries. Never empty.
func (p Plan) Queries() []WeightedQuery { return p.queries }

// TextWeight returns the text modality weight.
func (p Plan) TextWeight() float64 { return p.textWeight }

// ImageWeight returns the image modality weight.
func (p Plan) ImageWeight() float64 { return p.imageWeight }

// TopK returns the result limit, always within [MinTopK, MaxTopK].
func (p Plan) TopK() int { return p.topK }

// Filters returns the open attribute-value filter mapping. Never nil.
func (p Plan) Filters() map[string]any { return p.filters }

// BestQuery returns the text of the highest-weight query; ties resolve to the
// earliest entry in planner order.
func (p Plan) BestQuery() string {
	best := ""
	bestWeight := 0.0
	for i, q := range p.queries {
		if i == 0 || q.weight > bestWeight {
			best = q.query
			bestWeight = q.weight
		}
	}
	return strings.TrimSpace(best)
}

// MarshalJSON renders the plan in the planner's own schema, so a marshaled
// plan re-normalizes to itself.
func (p Plan) MarshalJSON() ([]byte, error) {
	queries := make([]map[string]any, len(p.queries))
	for i, q := range p.queries {
		queries[i] = map[string]any{"query": q.query, "weight": q.weight}
	}
	return json.Marshal(map[string]any{
		"intermediate_queries": queries,
		"weights":              map[string]any{"text": p.textWeight, "image": p.imageWeight},
		"top_k":                p.topK,
		"filters":              p.filters,
	})
}

// ParseError reports planner output with no recoverable plan content.
// Raw carries the original planner text for diagnostics.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrPlanParse.Error(), e.Reason)
}

func (e *ParseError) Unwrap() error { return domain.ErrPlanParse }

// Fallback synthesizes the plan used when the planner produced nothing usable:
// a single full-message query with default weights and limit.
func Fallback(message string, hasImage bool) Plan {
	imageWeight := 0.0
	if hasImage {
		imageWeight = fallbackImageWeight
	}
	return Plan{
		queries:     []WeightedQuery{{query: message, weight: defaultQueryWeight}},
		textWeight:  defaultTextWeight,
		imageWeight: imageWeight,
		topK:        DefaultTopK,
		filters:     map[string]any{},
	}
}

// ClampTopK bounds a limit into [MinTopK, MaxTopK].
func ClampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// Normalize converts raw planner output into a canonical Plan.
//
// raw may be a Plan (returned unchanged), a map already in plan shape, or a
// string that is unwrapped from LLM formatting noise (code fences, leading
// prose) and parsed as JSON. Any other type counts as absent.
//
// Unparseable or absent raw degrades to Fallback(message, hasImage) whenever
// message is non-empty; a *ParseError is returned only when there is no plan
// content and no message to fall back to.
func Normalize(raw any, message string, hasImage bool) (Plan, error) {
	message = strings.TrimSpace(message)

	obj, err := coerceObject(raw)
	if err != nil {
		if message == "" {
			return Plan{}, err
		}
		return Fallback(message, hasImage), nil
	}
	if p, ok := obj.(Plan); ok {
		return p, nil
	}

	fields := obj.(map[string]any)
	return Plan{
		queries:     normalizeQueries(fields["intermediate_queries"], message),
		textWeight:  weightOrDefault(fields["weights"], "text", defaultTextWeight),
		imageWeight: weightOrDefault(fields["weights"], "image", imageDefault(hasImage)),
		topK:        ClampTopK(intOrDefault(fields["top_k"], DefaultTopK)),
		filters:     normalizeFilters(fields["filters"]),
	}, nil
}

// coerceObject resolves raw into a map[string]any, a Plan, or a *ParseError.
func coerceObject(raw any) (any, error) {
	switch v := raw.(type) {
	case Plan:
		return v, nil
	case map[string]any:
		return v, nil
	case []byte:
		return extractObject(string(v))
	case string:
		return extractObject(v)
	default:
		return nil, &ParseError{Reason: "no plan content"}
	}
}

// extractObject strips markdown fences and surrounding prose, then parses the
// substring between the first '{' and the last '}' as a JSON object.
func extractObject(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, &ParseError{Raw: raw, Reason: "empty planner output"}
	}

	if strings.Contains(s, "```") {
		parts := strings.Split(s, "```")
		if len(parts) >= 3 {
			s = strings.TrimSpace(parts[1])
			if rest, ok := cutFold(s, "json"); ok {
				s = strings.TrimSpace(rest)
			}
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, &ParseError{Raw: raw, Reason: "no JSON object in planner output"}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid JSON: " + err.Error()}
	}
	return obj, nil
}

// cutFold strips a case-insensitive prefix, reporting whether it was present.
func cutFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func normalizeQueries(v any, message string) []WeightedQuery {
	entries, _ := v.([]any)

	queries := make([]WeightedQuery, 0, len(entries))
	for _, entry := range entries {
		switch e := entry.(type) {
		case string:
			queries = append(queries, WeightedQuery{query: e, weight: defaultQueryWeight})
		case map[string]any:
			q, ok := e["query"].(string)
			if !ok {
				continue // non-text query entries are dropped, not coerced
			}
			queries = append(queries, WeightedQuery{
				query:  q,
				weight: floatOrDefault(e["weight"], defaultQueryWeight),
			})
		}
	}

	if len(queries) == 0 {
		queries = []WeightedQuery{{query: message, weight: defaultQueryWeight}}
	}
	return queries
}

func imageDefault(hasImage bool) float64 {
	if hasImage {
		return fallbackImageWeight
	}
	return 0.0
}

func weightOrDefault(weights any, key string, def float64) float64 {
	m, ok := weights.(map[string]any)
	if !ok {
		return def
	}
	return floatOrDefault(m[key], def)
}

func floatOrDefault(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return def
}

func intOrDefault(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

func normalizeFilters(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
