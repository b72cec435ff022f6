package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blueonelabs/dealer-rag/internal/config"
	"github.com/blueonelabs/dealer-rag/internal/core/domain"
	"github.com/blueonelabs/dealer-rag/internal/core/ports"
	"github.com/blueonelabs/dealer-rag/internal/core/usecase"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/keyword"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/resilience"
	"github.com/blueonelabs/dealer-rag/internal/observability/metrics"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

// newTestRouter wires a real retriever with a keyword index and no vector
// backend, the same shape a keyword-only deployment has.
func newTestRouter(t *testing.T, embedder *fakeEmbedder) *Router {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.RerankEnabled = false

	idx := keyword.NewIndex(keyword.DefaultConfig())
	idx.Build("default", []domain.Document{
		{ID: "doc-1", Content: "diesel oil change interval every ten thousand kilometers", Namespace: "default"},
		{ID: "doc-2", Content: "brake pad replacement guide", Namespace: "default"},
	})

	breakers := resilience.NewRegistry()
	retriever := usecase.NewHybridRetriever(
		nil,
		idx,
		nil,
		breakers.Get("vector_search", resilience.DefaultConfig()),
		breakers.Get("rerank", resilience.DefaultConfig()),
		usecase.DefaultConfig(),
		nil,
	)
	// A typed-nil *fakeEmbedder must become a nil interface, matching the
	// router's "no embedder configured" check.
	var queryEmbedder ports.QueryEmbedder
	if embedder != nil {
		queryEmbedder = embedder
	}
	return NewRouter(retriever, queryEmbedder, breakers, metrics.NewRetrievalMetrics("test"), cfg)
}

func TestRetrieveEndpointDegradesWithoutVectorBackend(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/retrieve", "application/json",
		strings.NewReader(`{"query": "diesel oil change"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result domain.RetrievalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result without vector backend")
	}
	if len(result.FailedSources) != 1 || result.FailedSources[0] != domain.SourceVector {
		t.Fatalf("expected vector source marked failed, got %v", result.FailedSources)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Document.ID != "doc-1" {
		t.Fatalf("expected keyword hit for doc-1, got %+v", result.Candidates)
	}
}

func TestRetrieveEndpointRejectsInvalidJSON(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/retrieve", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRetrieveEndpointRejectsEmptyQuery(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/retrieve", "application/json", strings.NewReader(`{"query": ""}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", resp.StatusCode)
	}
}

func TestRetrieveEndpointSurvivesEmbedderFailure(t *testing.T) {
	router := newTestRouter(t, &fakeEmbedder{err: errors.New("ollama down")})
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/retrieve", "application/json",
		strings.NewReader(`{"query": "brake pad"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("embedder failure must degrade, not fail; got %d", resp.StatusCode)
	}
}

func TestDocumentsEndpointIndexesAndClears(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	body := `{
		"namespace": "dealer-west",
		"documents": [{"id": "doc-9", "content": "coolant flush procedure"}]
	}`
	resp, err := http.Post(server.URL+"/v1/documents", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("index request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on index, got %d", resp.StatusCode)
	}

	// The indexed document is retrievable in its namespace.
	searchResp, err := http.Post(server.URL+"/v1/retrieve", "application/json",
		strings.NewReader(`{"query": "coolant flush", "namespace": "dealer-west"}`))
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	defer searchResp.Body.Close()
	var result domain.RetrievalResult
	if err := json.NewDecoder(searchResp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Document.ID != "doc-9" {
		t.Fatalf("expected indexed document retrievable, got %+v", result.Candidates)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/documents?namespace=dealer-west", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("clear request failed: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on clear, got %d", delResp.StatusCode)
	}
}

func TestClearRequiresNamespace(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/documents", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without namespace, got %d", resp.StatusCode)
	}
}

func TestBreakersEndpointListsSnapshots(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/breakers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Breakers []resilience.Snapshot `json:"breakers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Breakers) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(body.Breakers))
	}
	if body.Breakers[0].Name != "rerank" || body.Breakers[1].Name != "vector_search" {
		t.Fatalf("expected name-sorted snapshots, got %+v", body.Breakers)
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	router := newTestRouter(t, nil)
	server := httptest.NewServer(router.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header on every response")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrBothSourcesFailed, http.StatusServiceUnavailable},
		{domain.ErrDependencyUnavailable, http.StatusServiceUnavailable},
		{domain.ErrDependencyTimeout, http.StatusGatewayTimeout},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
