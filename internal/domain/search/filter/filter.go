// Package filter translates a plan's open attribute-value mapping into the
// index-native predicate set.
package filter

import (
	"sort"
	"strconv"
)

// Expression is the native filter translated from plan filters.
// All conditions are required to hold simultaneously (must semantics).
type Expression struct {
	must []Condition
}

// Condition requires an attribute to equal one of its values.
// A single value means exact match; multiple values mean match-any.
type Condition struct {
	key    string
	values []string
}

// Key returns the attribute name.
func (c Condition) Key() string { return c.key }

// Values returns the accepted values. Never empty.
func (c Condition) Values() []string { return c.values }

// Must returns the required conditions in deterministic (key-sorted) order.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression constrains nothing. Callers treat an
// empty expression as "do not filter", never as "match nothing".
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// NewCondition builds a condition directly (tests, ingest tooling).
func NewCondition(key string, values ...string) Condition {
	return Condition{key: key, values: values}
}

// Reconstruct assembles an Expression from prepared conditions.
func Reconstruct(must []Condition) Expression {
	return Expression{must: must}
}

// FromAttributes translates an attribute-value mapping into an Expression.
// Nil values, empty strings, and empty lists contribute no condition; a list
// becomes match-any over its usable elements. Conditions are sorted by key so
// the rendered index query is deterministic.
func FromAttributes(attrs map[string]any) Expression {
	if len(attrs) == 0 {
		return Expression{}
	}

	must := make([]Condition, 0, len(attrs))
	for key, value := range attrs {
		if key == "" {
			continue
		}
		values := coerceValues(value)
		if len(values) == 0 {
			continue
		}
		must = append(must, Condition{key: key, values: values})
	}

	sort.Slice(must, func(i, j int) bool { return must[i].key < must[j].key })
	return Expression{must: must}
}

func coerceValues(value any) []string {
	if list, ok := value.([]any); ok {
		values := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := scalarString(item); ok {
				values = append(values, s)
			}
		}
		return values
	}

	if s, ok := scalarString(value); ok {
		return []string{s}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
