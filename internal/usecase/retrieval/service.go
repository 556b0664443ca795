// Package retrieval orchestrates the plan -> embed -> search -> fuse -> enrich
// pipeline behind the chat endpoint.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/plan"
	"github.com/lookbook-ai/lookbook/internal/domain/search/filter"
	"github.com/lookbook-ai/lookbook/internal/domain/search/hit"
	"github.com/lookbook-ai/lookbook/internal/domain/search/modality"
)

// Config holds the orchestrator's tunables.
type Config struct {
	DefaultTopK     int
	PlannerTimeout  time.Duration
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	MetadataTimeout time.Duration
}

// Result is one enriched entry of the final ranking.
type Result struct {
	ProductID   string
	Score       float64
	Description string
	ImagePath   string
	Brand       string
	Category    string
	SubCategory string
	Color       string
}

// Response is the full outcome of one retrieval request.
type Response struct {
	Plan             plan.Plan
	QueryUsed        string
	Results          []Result
	AssistantMessage string
}

// Service coordinates the retrieval pipeline.
type Service struct {
	planner Planner
	embed   Embedder
	search  Searcher
	catalog Catalog
	cfg     Config
	logger  *zap.Logger
}

// New creates a retrieval service.
func New(planner Planner, embed Embedder, search Searcher, catalog Catalog, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		planner: planner,
		embed:   embed,
		search:  search,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
	}
}

// Retrieve runs the full pipeline for one chat request.
func (s *Service) Retrieve(ctx context.Context, message string, image []byte) (Response, error) {
	message = strings.TrimSpace(message)
	hasImage := len(image) > 0

	if message == "" && !hasImage {
		return Response{}, domain.ErrInvalidRequest
	}

	p, err := s.buildPlan(ctx, message, hasImage)
	if err != nil {
		return Response{}, err
	}

	queryUsed := p.BestQuery()
	if queryUsed == "" {
		queryUsed = message
	}

	filters := filter.FromAttributes(p.Filters())
	topK := p.TopK()
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	textHits, imageHits, err := s.searchModalities(ctx, queryUsed, image, topK, filters)
	if err != nil {
		return Response{}, err
	}

	fused := fuse(textHits, imageHits, p.TextWeight(), p.ImageWeight(), topK)

	results, err := s.enrich(ctx, fused, textHits, imageHits)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Plan:             p,
		QueryUsed:        queryUsed,
		Results:          results,
		AssistantMessage: buildAnswer(p, len(results)),
	}, nil
}

// buildPlan asks the planner for a raw plan and normalizes it. Planner
// transport failures degrade to the fallback plan; a parse failure surfaces
// only when there is no message to fall back to.
func (s *Service) buildPlan(ctx context.Context, message string, hasImage bool) (plan.Plan, error) {
	plannerCtx, cancel := context.WithTimeout(ctx, s.cfg.PlannerTimeout)
	defer cancel()

	raw, err := s.planner.Plan(plannerCtx, message, hasImage)
	if err != nil {
		if message == "" {
			return plan.Plan{}, fmt.Errorf("plan request: %w", err)
		}
		s.logger.Warn("Planner unavailable, using fallback plan", zap.Error(err))
		return plan.Fallback(message, hasImage), nil
	}

	p, err := plan.Normalize(raw, message, hasImage)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("normalize plan: %w", err)
	}
	return p, nil
}

// searchModalities runs the embed+search pipeline for every structurally
// available modality. The two pipelines have no data dependency and run
// concurrently.
func (s *Service) searchModalities(
	ctx context.Context, query string, image []byte,
	topK int, filters filter.Expression,
) (textHits, imageHits []hit.Hit, err error) {
	g, gctx := errgroup.WithContext(ctx)

	if query != "" {
		g.Go(func() error {
			hits, err := s.searchText(gctx, query, topK, filters)
			if err != nil {
				return err
			}
			textHits = hits
			return nil
		})
	}

	if len(image) > 0 {
		g.Go(func() error {
			hits, err := s.searchImage(gctx, image, topK, filters)
			if err != nil {
				return err
			}
			imageHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return textHits, imageHits, nil
}

func (s *Service) searchText(ctx context.Context, query string, topK int, filters filter.Expression) ([]hit.Hit, error) {
	vec, err := s.embedWithTimeout(ctx, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return s.embed.EmbedText(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("embed text query: %w", err)
	}
	return s.searchWithTimeout(ctx, modality.Text, vec, topK, filters)
}

func (s *Service) searchImage(ctx context.Context, image []byte, topK int, filters filter.Expression) ([]hit.Hit, error) {
	vec, err := s.embedWithTimeout(ctx, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return s.embed.EmbedImage(ctx, image)
	})
	if err != nil {
		return nil, fmt.Errorf("embed image query: %w", err)
	}
	return s.searchWithTimeout(ctx, modality.Image, vec, topK, filters)
}

func (s *Service) embedWithTimeout(
	ctx context.Context,
	embed func(ctx context.Context) (domain.EmbeddingResult, error),
) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	result, err := embed(embedCtx)
	if err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

func (s *Service) searchWithTimeout(
	ctx context.Context, m modality.Modality,
	vec []float32, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()

	hits, err := s.search.Search(searchCtx, m, vec, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m, err)
	}
	return hits, nil
}

// enrich joins the fused ranking against the metadata store. Each displayed
// field independently prefers the stored document value and falls back to the
// index payload carried by the hits.
func (s *Service) enrich(ctx context.Context, fused []Fused, textHits, imageHits []hit.Hit) ([]Result, error) {
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ProductID
	}

	metaCtx, cancel := context.WithTimeout(ctx, s.cfg.MetadataTimeout)
	defer cancel()

	products, err := s.catalog.GetMany(metaCtx, ids)
	if err != nil {
		return nil, fmt.Errorf("enrich results: %w", err)
	}

	// Text payloads take precedence; image payloads fill products the text
	// side never saw.
	payloads := make(map[string]hit.Payload, len(textHits)+len(imageHits))
	for _, h := range imageHits {
		payloads[h.ID()] = h.Payload()
	}
	for _, h := range textHits {
		payloads[h.ID()] = h.Payload()
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		payload := payloads[f.ProductID]
		stored := products[f.ProductID]

		results = append(results, Result{
			ProductID:   f.ProductID,
			Score:       f.Score,
			Description: firstNonEmpty(stored.Description, payload.Description),
			ImagePath:   firstNonEmpty(stored.ImagePath, payload.ImagePath),
			Brand:       firstNonEmpty(stored.Brand, payload.Brand),
			Category:    firstNonEmpty(stored.Category, payload.Category),
			SubCategory: firstNonEmpty(stored.SubCategory, payload.SubCategory),
			Color:       firstNonEmpty(stored.Color, payload.Color),
		})
	}
	return results, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
