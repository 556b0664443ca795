package redis

import (
	"fmt"
	"strconv"
	"strings"

	"context"

	"github.com/redis/rueidis"

	"github.com/lookbook-ai/lookbook/internal/db"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
)

const scoreField = "__vector_score"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH against one
// VECTOR field of the index.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.VectorField == "" {
		return nil, fmt.Errorf("vector field is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(buildSearchArgs(q)...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// buildSearchArgs renders the FT.SEARCH argument list. The LIMIT clause must
// request the full k window: without it the server returns at most its
// default of 10 rows regardless of the KNN k.
func buildSearchArgs(q *db.KNNQuery) []string {
	args := []string{q.IndexName, buildKNNQuery(q)}

	returnFields := append([]string{scoreField}, q.ReturnFields...)
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)

	return append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", db.VectorBytes(q.Vector),
		"DIALECT", "2",
	)
}

// buildKNNQuery renders "(<pre-filter>)=>[KNN k @field $BLOB AS __vector_score]".
func buildKNNQuery(q *db.KNNQuery) string {
	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", q.K, q.VectorField, scoreField)

	filterStr := buildFilter(q.Filters)
	if filterStr == "" {
		return "*=>" + knnPart
	}
	return fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
}

// parseKNNResult converts the RESP2 FT.SEARCH reply into db.SearchResult,
// mapping cosine distance to similarity (1-d, clamped at 0).
func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if distStr, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(distStr, 64); err == nil {
				entry.Score = max(0, 1.0-d) // cosine distance -> similarity
			}
			delete(entry.Fields, scoreField)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// buildFilter renders a filter.Expression as an FT.SEARCH TAG pre-filter.
// An empty expression renders as "" and the KNN query falls back to "*"
// (no constraint at all, as opposed to constraining to nothing).
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	parts := make([]string, 0, len(expr.Must()))
	for _, cond := range expr.Must() {
		parts = append(parts, buildTagCondition(cond))
	}
	return strings.Join(parts, " ")
}

// buildTagCondition renders "@key:{a|b|c}" (| is TAG OR, giving match-any).
func buildTagCondition(cond filter.Condition) string {
	escaped := make([]string, len(cond.Values()))
	for i, v := range cond.Values() {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", cond.Key(), strings.Join(escaped, "|"))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)
