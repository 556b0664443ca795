package filter

import (
	"reflect"
	"testing"
)

func TestFromAttributes_MixedScalarsAndLists(t *testing.T) {
	expr := FromAttributes(map[string]any{
		"color":    []any{"black", "red"},
		"category": "dresses",
		"size":     []any{},
	})

	if expr.IsEmpty() {
		t.Fatal("expression should not be empty")
	}

	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d: %+v", len(must), must)
	}

	// key-sorted: category before color
	if must[0].Key() != "category" || !reflect.DeepEqual(must[0].Values(), []string{"dresses"}) {
		t.Errorf("unexpected category condition: %+v", must[0])
	}
	if must[1].Key() != "color" || !reflect.DeepEqual(must[1].Values(), []string{"black", "red"}) {
		t.Errorf("unexpected color condition: %+v", must[1])
	}
}

func TestFromAttributes_EmptyInputYieldsNoFilter(t *testing.T) {
	for name, attrs := range map[string]map[string]any{
		"nil map":         nil,
		"empty map":       {},
		"only nil values": {"color": nil, "brand": nil},
		"only empties":    {"color": "", "size": []any{}, "tags": []any{nil, ""}},
	} {
		if expr := FromAttributes(attrs); !expr.IsEmpty() {
			t.Errorf("%s: expected empty expression, got %+v", name, expr.Must())
		}
	}
}

func TestFromAttributes_ScalarCoercion(t *testing.T) {
	expr := FromAttributes(map[string]any{
		"year":     2021.0,
		"in_stock": true,
	})

	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(must))
	}
	if must[0].Key() != "in_stock" || must[0].Values()[0] != "true" {
		t.Errorf("unexpected bool condition: %+v", must[0])
	}
	if must[1].Key() != "year" || must[1].Values()[0] != "2021" {
		t.Errorf("unexpected numeric condition: %+v", must[1])
	}
}

func TestFromAttributes_ListDropsUnusableElements(t *testing.T) {
	expr := FromAttributes(map[string]any{
		"color": []any{"blue", nil, "", map[string]any{"no": "pe"}},
	})

	must := expr.Must()
	if len(must) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(must))
	}
	if !reflect.DeepEqual(must[0].Values(), []string{"blue"}) {
		t.Errorf("expected only usable elements, got %v", must[0].Values())
	}
}

func TestFromAttributes_Deterministic(t *testing.T) {
	attrs := map[string]any{"c": "3", "a": "1", "b": "2", "d": "4"}

	first := FromAttributes(attrs)
	for range 20 {
		if next := FromAttributes(attrs); !reflect.DeepEqual(first, next) {
			t.Fatal("condition order must not depend on map iteration order")
		}
	}
}
