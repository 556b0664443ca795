// Package chi implements the HTTP API surface.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/plan"
	logpkg "github.com/lookbook-ai/lookbook/internal/logger"
	healthuc "github.com/lookbook-ai/lookbook/internal/usecase/health"
	retrievaluc "github.com/lookbook-ai/lookbook/internal/usecase/retrieval"
)

// maxUploadBytes caps the multipart request size (message + image).
const maxUploadBytes = 10 << 20

// retriever runs the retrieval pipeline (consumer interface, ISP).
type retriever interface {
	Retrieve(ctx context.Context, message string, image []byte) (retrievaluc.Response, error)
}

// healthChecker aggregates component health.
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the retrieval pipeline over HTTP.
type Server struct {
	retrieval     retriever
	health        healthChecker
	dataRoot      string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. dataRoot is the directory product
// images are served from.
func NewServer(retrieval retriever, health healthChecker, dataRoot string, logger *zap.Logger) *Server {
	s := &Server{
		retrieval: retrieval,
		health:    health,
		dataRoot:  dataRoot,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		planParseHandler,
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"),
		sentinelHandler(domain.ErrPlannerUnavailable, http.StatusBadGateway, "planner_unavailable"),
		sentinelHandler(domain.ErrInvalidVector, http.StatusBadGateway, "invalid_vector"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusBadGateway, "search_unavailable"),
		sentinelHandler(domain.ErrMetadataUnavailable, http.StatusBadGateway, "metadata_unavailable"),
	}
	return s
}

// RegisterRoutes attaches the API handlers to the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", s.Chat)
	r.Get("/api/image", s.Image)
	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())
}

// --- DTOs ---

type errorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	RawPlan *string `json:"raw_plan,omitempty"`
}

type chatResponse struct {
	Plan      plan.Plan    `json:"plan"`
	QueryUsed string       `json:"query_used"`
	Results   []resultItem `json:"results"`
	Answer    string       `json:"answer"`
}

type resultItem struct {
	ProductID   string  `json:"product_id"`
	Score       float64 `json:"score"`
	Description *string `json:"description"`
	ImagePath   *string `json:"image_path"`
	Brand       *string `json:"brand,omitempty"`
	Category    *string `json:"category,omitempty"`
	SubCategory *string `json:"sub_category,omitempty"`
	Color       *string `json:"color,omitempty"`
}

// Chat handles POST /api/chat (multipart form: message text, optional image file).
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart form: "+err.Error())
		return
	}

	message := r.FormValue("message")

	var image []byte
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Failed to read image: "+err.Error())
			return
		}
	}

	resp, err := s.retrieval.Retrieve(r.Context(), message, image)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatToDTO(resp))
}

// Image handles GET /api/image?path=. Only files under the configured data
// root are served; anything else is reported as not found.
func (s *Server) Image(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	raw = strings.Trim(raw, `"'`)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "path query parameter is required")
		return
	}

	resolved, ok := s.resolveImagePath(raw)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	http.ServeFile(w, r, resolved)
}

// resolveImagePath confines the requested path to the data root. Relative
// paths are joined to the root; absolute paths are allowed only when already
// inside it.
func (s *Server) resolveImagePath(raw string) (string, bool) {
	p := filepath.FromSlash(raw)
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.dataRoot, p)
	}

	resolved, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}

	root, err := filepath.Abs(s.dataRoot)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
		s.logger.Warn("health check degraded", zap.Any("checks", report.Checks))
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// --- helpers ---

func chatToDTO(resp retrievaluc.Response) chatResponse {
	results := make([]resultItem, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = resultItem{
			ProductID:   r.ProductID,
			Score:       r.Score,
			Description: strPtr(r.Description),
			ImagePath:   strPtr(r.ImagePath),
			Brand:       strPtr(r.Brand),
			Category:    strPtr(r.Category),
			SubCategory: strPtr(r.SubCategory),
			Color:       strPtr(r.Color),
		}
	}
	return chatResponse{
		Plan:      resp.Plan,
		QueryUsed: resp.QueryUsed,
		Results:   results,
		Answer:    resp.AssistantMessage,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrPlanParse,
		domain.ErrPlannerUnavailable,
		domain.ErrInvalidVector,
		domain.ErrSearchUnavailable,
		domain.ErrMetadataUnavailable,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// planParseHandler handles plan parse failures with the raw planner text attached.
func planParseHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrPlanParse) {
		return false
	}
	var pe *plan.ParseError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Code:    "plan_parse_failed",
			Message: msg,
			RawPlan: &pe.Raw,
		})
		return true
	}
	writeError(w, http.StatusBadGateway, "plan_parse_failed", msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	reqLogger := logpkg.FromContext(r.Context())

	reqLogger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	reqLogger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
