package embcache

import (
	"context"
	"errors"
	"testing"

	"github.com/lookbook-ai/lookbook/internal/domain"
)

func TestEmbedText_MissThenHit(t *testing.T) {
	c, inner, _ := newTestCache(t)
	ctx := context.Background()

	first, err := c.EmbedText(ctx, "black midi dress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.textCalls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.textCalls)
	}
	if first.TotalTokens != 7 {
		t.Errorf("miss should carry inner token usage, got %d", first.TotalTokens)
	}

	second, err := c.EmbedText(ctx, "black midi dress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.textCalls != 1 {
		t.Errorf("hit should not call inner, got %d calls", inner.textCalls)
	}
	if second.TotalTokens != 0 {
		t.Errorf("hit should report zero tokens, got %d", second.TotalTokens)
	}
	if len(second.Embedding) != len(first.Embedding) {
		t.Fatalf("embedding length mismatch: %d vs %d", len(second.Embedding), len(first.Embedding))
	}
	for i := range first.Embedding {
		if second.Embedding[i] != first.Embedding[i] {
			t.Errorf("element %d: got %v, want %v", i, second.Embedding[i], first.Embedding[i])
		}
	}
}

func TestEmbedImage_MissThenHit(t *testing.T) {
	c, inner, _ := newTestCache(t)
	ctx := context.Background()
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	if _, err := c.EmbedImage(ctx, img); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.EmbedImage(ctx, img); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.imageCalls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.imageCalls)
	}
}

func TestCacheKeys_TextAndImageDoNotCollide(t *testing.T) {
	c, inner, _ := newTestCache(t)
	ctx := context.Background()

	content := []byte("same bytes either way")

	if _, err := c.EmbedText(ctx, string(content)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.EmbedImage(ctx, content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.textCalls != 1 || inner.imageCalls != 1 {
		t.Errorf("expected both modalities to miss, got text=%d image=%d", inner.textCalls, inner.imageCalls)
	}
}

func TestEmbedText_InnerErrorPropagates(t *testing.T) {
	c, inner, _ := newTestCache(t)

	innerErr := errors.New("provider down")
	inner.embedTextFn = func(_ context.Context, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, innerErr
	}

	_, err := c.EmbedText(context.Background(), "query")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected inner error, got %v", err)
	}
}

func TestEmbedText_CorruptCacheFallsThrough(t *testing.T) {
	c, inner, ms := newTestCache(t)
	ctx := context.Background()

	// Seed a value that cannot decode as float32 bytes.
	key := c.cacheKey("txt", []byte("query"))
	ms.data[key] = []byte{1, 2, 3}

	res, err := c.EmbedText(ctx, "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.textCalls != 1 {
		t.Errorf("corrupt entry should fall through to inner, got %d calls", inner.textCalls)
	}
	if len(res.Embedding) == 0 {
		t.Error("expected embedding from inner")
	}
}
