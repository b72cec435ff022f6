package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/blueonelabs/dealer-rag/internal/config"
	"github.com/blueonelabs/dealer-rag/internal/core/domain"
	"github.com/blueonelabs/dealer-rag/internal/core/ports"
	"github.com/blueonelabs/dealer-rag/internal/core/usecase"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/resilience"
	"github.com/blueonelabs/dealer-rag/internal/observability/metrics"
)

type Router struct {
	retriever *usecase.HybridRetriever
	embedder  ports.QueryEmbedder
	breakers  *resilience.Registry
	metrics   *metrics.RetrievalMetrics
	cfg       config.Config
}

func NewRouter(
	retriever *usecase.HybridRetriever,
	embedder ports.QueryEmbedder,
	breakers *resilience.Registry,
	m *metrics.RetrievalMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		retriever: retriever,
		embedder:  embedder,
		breakers:  breakers,
		metrics:   m,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/breakers", rt.breakerSnapshots)
	mux.Handle("/metrics", rt.metrics.Handler())
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query     string             `json:"query"`
	Namespace string             `json:"namespace"`
	TopK      int                `json:"top_k"`
	Filters   map[string]string  `json:"filters"`
	Weights   map[string]float64 `json:"weights"`
	Lambda    *float64           `json:"lambda"`
	Rerank    *bool              `json:"rerank"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	start := time.Now()
	req := rt.buildRetrievalRequest(r, body)
	result, err := rt.retriever.Retrieve(r.Context(), req)
	if err != nil {
		outcome := "failed"
		if domain.IsKind(err, domain.ErrInvalidRequest) {
			outcome = "invalid"
		}
		rt.metrics.ObserveRequest(outcome, time.Since(start), -1)
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	rt.metrics.ObserveRequest(outcome, time.Since(start), len(result.Candidates))
	writeJSON(w, http.StatusOK, result)
}

// buildRetrievalRequest applies config defaults and resolves the query
// vector. A failing embedding collaborator degrades the request to
// keyword-only retrieval instead of rejecting it.
func (rt *Router) buildRetrievalRequest(r *http.Request, body retrieveRequest) domain.RetrievalRequest {
	namespace := body.Namespace
	if namespace == "" {
		namespace = "default"
	}
	topK := body.TopK
	if topK <= 0 {
		topK = rt.cfg.TopKFinal
	}
	lambda := rt.cfg.DiversityLambda
	if body.Lambda != nil {
		lambda = *body.Lambda
	}
	rerank := rt.cfg.RerankEnabled
	if body.Rerank != nil {
		rerank = *body.Rerank
	}

	var queryVector []float32
	if rt.embedder != nil && body.Query != "" {
		vector, err := rt.embedder.EmbedQuery(r.Context(), body.Query)
		if err != nil {
			slog.Warn("query_embedding_failed",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
		} else {
			queryVector = vector
		}
	}

	return domain.RetrievalRequest{
		QueryText:       body.Query,
		QueryVector:     queryVector,
		Namespace:       namespace,
		TopKPerSource:   rt.cfg.TopKPerSource,
		TopKFinal:       topK,
		Filters:         domain.Filter(body.Filters),
		FusionWeights:   body.Weights,
		DiversityLambda: lambda,
		Rerank:          rerank,
	}
}

type indexRequest struct {
	Namespace string            `json:"namespace"`
	Documents []domain.Document `json:"documents"`
	Vectors   [][]float32       `json:"vectors"`
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.indexDocuments(w, r)
	case http.MethodDelete:
		rt.clearNamespace(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) indexDocuments(w http.ResponseWriter, r *http.Request) {
	var body indexRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if body.Namespace == "" {
		body.Namespace = "default"
	}
	for i := range body.Documents {
		body.Documents[i].Namespace = body.Namespace
	}

	if err := rt.retriever.Index(r.Context(), body.Namespace, body.Documents, body.Vectors); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indexed":   len(body.Documents),
		"namespace": body.Namespace,
	})
}

func (rt *Router) clearNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		writeError(w, http.StatusBadRequest, "namespace query parameter is required")
		return
	}
	if err := rt.retriever.ClearNamespace(r.Context(), namespace); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"namespace": namespace, "status": "cleared"})
}

func (rt *Router) breakerSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": rt.breakers.Snapshots()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
