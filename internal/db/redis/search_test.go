package redis

import (
	"strings"
	"testing"

	"github.com/lookbook-ai/lookbook/internal/db"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
)

func TestBuildKNNQuery_NoFilter(t *testing.T) {
	q := &db.KNNQuery{VectorField: "text_vector", K: 10}
	got := buildKNNQuery(q)
	want := "*=>[KNN 10 @text_vector $BLOB AS __vector_score]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildKNNQuery_WithFilter(t *testing.T) {
	expr := filter.Reconstruct([]filter.Condition{
		filter.NewCondition("category", "dresses"),
		filter.NewCondition("color", "black", "red"),
	})
	q := &db.KNNQuery{VectorField: "image_vector", K: 5, Filters: expr}

	got := buildKNNQuery(q)
	want := "(@category:{dresses} @color:{black|red})=>[KNN 5 @image_vector $BLOB AS __vector_score]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildSearchArgs_LimitCoversFullWindow(t *testing.T) {
	q := &db.KNNQuery{
		IndexName:    "lookbook:products:idx",
		VectorField:  "text_vector",
		Vector:       []float32{0.1, 0.2},
		K:            50,
		ReturnFields: []string{"product_id", "brand"},
	}

	joined := strings.Join(buildSearchArgs(q), " ")

	// Without an explicit LIMIT the server window defaults to 10 rows and
	// silently truncates any larger k.
	if !strings.Contains(joined, "LIMIT 0 50") {
		t.Errorf("expected LIMIT 0 50 in args, got %q", joined)
	}
	if !strings.Contains(joined, "[KNN 50 @text_vector") {
		t.Errorf("expected KNN clause for k=50, got %q", joined)
	}
	for _, fragment := range []string{
		"RETURN 3 __vector_score product_id brand",
		"SORTBY __vector_score ASC",
		"DIALECT 2",
	} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("expected %q in args, got %q", fragment, joined)
		}
	}
}

func TestBuildFilter_EmptyExpressionRendersNothing(t *testing.T) {
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Errorf("empty expression should render empty string, got %q", got)
	}
}

func TestBuildTagCondition_EscapesSpecials(t *testing.T) {
	cond := filter.NewCondition("brand", "rag & bone", "A-COLD-WALL*")
	got := buildTagCondition(cond)

	if !strings.HasPrefix(got, "@brand:{") {
		t.Fatalf("unexpected shape: %q", got)
	}
	for _, fragment := range []string{`rag\ \&\ bone`, `A\-COLD\-WALL\*`} {
		if !strings.Contains(got, fragment) {
			t.Errorf("expected escaped fragment %q in %q", fragment, got)
		}
	}
}

func TestBuildCreateArgs_TwoVectorFields(t *testing.T) {
	def := db.NewIndex("lookbook:products:idx").
		Prefix("lookbook:products:").
		Tag("brand").
		Tag("color").
		VectorHNSW("text_vector", 512, db.DistanceCosine, 32, 400).
		VectorHNSW("image_vector", 512, db.DistanceCosine, 32, 400).
		Build()

	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("buildCreateArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"lookbook:products:idx ON HASH PREFIX 1 lookbook:products:",
		"brand TAG",
		"text_vector VECTOR HNSW",
		"image_vector VECTOR HNSW",
		"DIM 512",
		"DISTANCE_METRIC COSINE",
		"M 32",
		"EF_CONSTRUCTION 400",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in args: %s", want, joined)
		}
	}
}

func TestBuildCreateArgs_Invalid(t *testing.T) {
	if _, err := buildCreateArgs(&db.IndexDefinition{}); err == nil {
		t.Error("expected error for empty definition")
	}

	def := db.NewIndex("idx").VectorHNSW("v", 0, db.DistanceCosine, 0, 0).Build()
	if _, err := buildCreateArgs(def); err == nil {
		t.Error("expected error for zero vector dimension")
	}
}
