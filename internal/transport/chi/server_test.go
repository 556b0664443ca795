package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/domain/plan"
	healthuc "github.com/lookbook-ai/lookbook/internal/usecase/health"
	retrievaluc "github.com/lookbook-ai/lookbook/internal/usecase/retrieval"
)

// mockRetriever implements the retriever consumer interface.
type mockRetriever struct {
	retrieveFn func(ctx context.Context, message string, image []byte) (retrievaluc.Response, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, message string, image []byte) (retrievaluc.Response, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, message, image)
	}
	return retrievaluc.Response{}, nil
}

// mockHealth implements the healthChecker consumer interface.
type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestServer(t *testing.T, mr *mockRetriever, mh *mockHealth, dataRoot string) *httptest.Server {
	t.Helper()
	if mh == nil {
		mh = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	}
	s := NewServer(mr, mh, dataRoot, zap.NewNop())
	r := chirouter.NewRouter()
	s.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func multipartBody(t *testing.T, message string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if message != "" {
		if err := mw.WriteField("message", message); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "query.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestChat_HappyPath(t *testing.T) {
	mr := &mockRetriever{
		retrieveFn: func(_ context.Context, message string, image []byte) (retrievaluc.Response, error) {
			if message != "black dress" {
				t.Errorf("unexpected message: %q", message)
			}
			if image != nil {
				t.Error("expected no image")
			}
			p, err := plan.Normalize(map[string]any{}, message, false)
			if err != nil {
				t.Fatalf("build plan: %v", err)
			}
			return retrievaluc.Response{
				Plan:      p,
				QueryUsed: "black dress",
				Results: []retrievaluc.Result{
					{ProductID: "P-001", Score: 0.9, Description: "midi dress", ImagePath: "women/d/1.jpg"},
					{ProductID: "P-002", Score: 0.5},
				},
				AssistantMessage: "Here are the closest matches.",
			}, nil
		},
	}
	ts := newTestServer(t, mr, nil, t.TempDir())

	body, contentType := multipartBody(t, "black dress", nil)
	resp, err := http.Post(ts.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var dto struct {
		Plan      json.RawMessage `json:"plan"`
		QueryUsed string          `json:"query_used"`
		Results   []struct {
			ProductID   string  `json:"product_id"`
			Score       float64 `json:"score"`
			Description *string `json:"description"`
		} `json:"results"`
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if dto.QueryUsed != "black dress" {
		t.Errorf("unexpected query_used: %q", dto.QueryUsed)
	}
	if len(dto.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(dto.Results))
	}
	if dto.Results[0].Description == nil || *dto.Results[0].Description != "midi dress" {
		t.Errorf("unexpected description: %v", dto.Results[0].Description)
	}
	if dto.Results[1].Description != nil {
		t.Error("empty description should serialize as null")
	}
	if len(dto.Plan) == 0 {
		t.Error("expected normalized plan in response")
	}
	if dto.Answer == "" {
		t.Error("expected assistant answer")
	}
}

func TestChat_ForwardsImage(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	var gotImage []byte

	mr := &mockRetriever{
		retrieveFn: func(_ context.Context, _ string, image []byte) (retrievaluc.Response, error) {
			gotImage = image
			return retrievaluc.Response{}, nil
		},
	}
	ts := newTestServer(t, mr, nil, t.TempDir())

	body, contentType := multipartBody(t, "", img)
	resp, err := http.Post(ts.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if !bytes.Equal(gotImage, img) {
		t.Errorf("image bytes not forwarded: got %v", gotImage)
	}
}

func TestChat_InvalidRequestMapsTo400(t *testing.T) {
	mr := &mockRetriever{
		retrieveFn: func(_ context.Context, _ string, _ []byte) (retrievaluc.Response, error) {
			return retrievaluc.Response{}, domain.ErrInvalidRequest
		},
	}
	ts := newTestServer(t, mr, nil, t.TempDir())

	body, contentType := multipartBody(t, " ", nil)
	resp, err := http.Post(ts.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChat_PlanParseErrorCarriesRawPlan(t *testing.T) {
	mr := &mockRetriever{
		retrieveFn: func(_ context.Context, _ string, _ []byte) (retrievaluc.Response, error) {
			return retrievaluc.Response{}, &plan.ParseError{Raw: "not json at all", Reason: "no JSON object found"}
		},
	}
	ts := newTestServer(t, mr, nil, t.TempDir())

	body, contentType := multipartBody(t, "query", nil)
	resp, err := http.Post(ts.URL+"/api/chat", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	var dto errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if dto.Code != "plan_parse_failed" {
		t.Errorf("unexpected code: %s", dto.Code)
	}
	if dto.RawPlan == nil || *dto.RawPlan != "not json at all" {
		t.Errorf("expected raw plan in body, got %v", dto.RawPlan)
	}
}

func TestChat_StageFailuresMapTo502(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"search", domain.ErrSearchUnavailable},
		{"metadata", domain.ErrMetadataUnavailable},
		{"embedding", domain.ErrEmbeddingProviderError},
		{"planner", domain.ErrPlannerUnavailable},
		{"vector", domain.ErrInvalidVector},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mr := &mockRetriever{
				retrieveFn: func(_ context.Context, _ string, _ []byte) (retrievaluc.Response, error) {
					return retrievaluc.Response{}, tc.err
				},
			}
			ts := newTestServer(t, mr, nil, t.TempDir())

			body, contentType := multipartBody(t, "query", nil)
			resp, err := http.Post(ts.URL+"/api/chat", contentType, body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadGateway {
				t.Errorf("expected 502, got %d", resp.StatusCode)
			}
		})
	}
}

func TestImage_ServesFileUnderDataRoot(t *testing.T) {
	dataRoot := t.TempDir()
	sub := filepath.Join(dataRoot, "women", "dresses")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := []byte("fake-jpeg-bytes")
	if err := os.WriteFile(filepath.Join(sub, "img1.jpg"), content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ts := newTestServer(t, &mockRetriever{}, nil, dataRoot)

	resp, err := http.Get(ts.URL + "/api/image?path=women/dresses/img1.jpg")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestImage_RejectsTraversal(t *testing.T) {
	dataRoot := t.TempDir()
	// A real file outside the data root.
	outside := filepath.Join(filepath.Dir(dataRoot), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ts := newTestServer(t, &mockRetriever{}, nil, dataRoot)

	for _, path := range []string{
		"../secret.txt",
		"a/../../secret.txt",
		outside, // absolute path outside the root
	} {
		resp, err := http.Get(ts.URL + "/api/image?path=" + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("path %q: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestImage_MissingPathParam(t *testing.T) {
	ts := newTestServer(t, &mockRetriever{}, nil, t.TempDir())

	resp, err := http.Get(ts.URL + "/api/image")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	mh := &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"vector_index": healthuc.CheckOK},
	}}
	ts := newTestServer(t, &mockRetriever{}, mh, t.TempDir())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var dto struct {
		Status string                    `json:"status"`
		Checks map[string]healthuc.CheckResult `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if dto.Status != "ok" {
		t.Errorf("unexpected status: %s", dto.Status)
	}
	if dto.Checks["vector_index"] != healthuc.CheckOK {
		t.Errorf("unexpected checks: %v", dto.Checks)
	}
}

func TestHealth_Degraded(t *testing.T) {
	mh := &mockHealth{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"vector_index": healthuc.CheckError},
	}}
	ts := newTestServer(t, &mockRetriever{}, mh, t.TempDir())

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}
