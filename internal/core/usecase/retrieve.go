package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
	"github.com/blueonelabs/dealer-rag/internal/core/ports"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/resilience"
)

// Config tunes the hybrid retrieval pipeline. Zero values fall back to the
// defaults below.
type Config struct {
	RRFK          int
	VectorWeight  float64
	KeywordWeight float64
	SearchTimeout time.Duration
	RerankTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RRFK:          defaultRRFK,
		VectorWeight:  0.6,
		KeywordWeight: 0.4,
		SearchTimeout: 5 * time.Second,
		RerankTimeout: 10 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.VectorWeight <= 0 {
		out.VectorWeight = def.VectorWeight
	}
	if out.KeywordWeight <= 0 {
		out.KeywordWeight = def.KeywordWeight
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = def.SearchTimeout
	}
	if out.RerankTimeout <= 0 {
		out.RerankTimeout = def.RerankTimeout
	}
	return out
}

// HybridRetriever runs the query pipeline: parallel vector and keyword
// search, RRF fusion, MMR diversity selection and optional reranking. The
// two external dependencies each sit behind their own circuit breaker;
// losing one search source degrades the response instead of failing it.
type HybridRetriever struct {
	vector   ports.VectorSearcher
	keyword  ports.KeywordSearcher
	reranker ports.Reranker

	vectorBreaker *resilience.Breaker
	rerankBreaker *resilience.Breaker

	cfg Config
	log *slog.Logger
}

func NewHybridRetriever(
	vector ports.VectorSearcher,
	keyword ports.KeywordSearcher,
	reranker ports.Reranker,
	vectorBreaker *resilience.Breaker,
	rerankBreaker *resilience.Breaker,
	cfg Config,
	log *slog.Logger,
) *HybridRetriever {
	if log == nil {
		log = slog.Default()
	}
	return &HybridRetriever{
		vector:        vector,
		keyword:       keyword,
		reranker:      reranker,
		vectorBreaker: vectorBreaker,
		rerankBreaker: rerankBreaker,
		cfg:           cfg.normalize(),
		log:           log,
	}
}

// Retrieve executes one hybrid retrieval request. It returns a ranked
// (possibly degraded, possibly empty) result, or an error only when the
// request is invalid or every search source failed.
func (r *HybridRetriever) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vectorHits, keywordHits, vectorErr, keywordErr := r.searchSources(ctx, req)
	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("%w: vector: %w; keyword: %w", domain.ErrBothSourcesFailed, vectorErr, keywordErr)
	}

	result := &domain.RetrievalResult{}
	lists := make(map[string][]domain.SearchHit, 2)
	if vectorErr != nil {
		result.Degraded = true
		result.FailedSources = append(result.FailedSources, domain.SourceVector)
		r.log.Warn("retrieval_source_degraded", "source", domain.SourceVector, "error", vectorErr)
	} else {
		lists[domain.SourceVector] = vectorHits
	}
	if keywordErr != nil {
		result.Degraded = true
		result.FailedSources = append(result.FailedSources, domain.SourceKeyword)
		r.log.Warn("retrieval_source_degraded", "source", domain.SourceKeyword, "error", keywordErr)
	} else {
		lists[domain.SourceKeyword] = keywordHits
	}

	fused := fuseRRF(lists, r.fusionWeights(req), r.cfg.RRFK)
	diversified := selectMMR(fused, req.TopKFinal, req.DiversityLambda)

	result.Candidates = r.maybeRerank(ctx, req, diversified)
	return result, nil
}

// searchSources issues the vector and keyword searches in parallel. Each
// side's error is captured rather than propagated so one failing source
// never cancels the other.
func (r *HybridRetriever) searchSources(ctx context.Context, req domain.RetrievalRequest) (vectorHits, keywordHits []domain.SearchHit, vectorErr, keywordErr error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vectorHits, vectorErr = r.vectorSearch(gctx, req)
		return nil
	})
	g.Go(func() error {
		keywordHits, keywordErr = r.keywordSearch(gctx, req)
		return nil
	})
	_ = g.Wait()
	return vectorHits, keywordHits, vectorErr, keywordErr
}

func (r *HybridRetriever) vectorSearch(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchHit, error) {
	if r.vector == nil {
		return nil, fmt.Errorf("%w: vector search not configured", domain.ErrDependencyUnavailable)
	}
	if len(req.QueryVector) == 0 {
		return nil, fmt.Errorf("%w: no query vector supplied", domain.ErrDependencyUnavailable)
	}

	hits, err := resilience.Call(ctx, r.vectorBreaker, func(ctx context.Context) ([]domain.SearchHit, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
		defer cancel()
		return r.vector.Search(callCtx, req.Namespace, req.QueryVector, req.TopKPerSource, req.Filters)
	})
	if err != nil {
		return nil, classifyDependencyError("vector search", err)
	}
	return hits, nil
}

func (r *HybridRetriever) keywordSearch(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchHit, error) {
	if r.keyword == nil {
		return nil, fmt.Errorf("%w: keyword search not configured", domain.ErrDependencyUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyDependencyError("keyword search", err)
	}
	return r.keyword.Search(req.Namespace, req.QueryText, req.TopKPerSource, req.Filters), nil
}

// maybeRerank forwards the diversified candidates to the reranking backend.
// Any failure, including an open breaker, falls back to the pre-rerank
// ordering.
func (r *HybridRetriever) maybeRerank(ctx context.Context, req domain.RetrievalRequest, candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	if !req.Rerank || r.reranker == nil || len(candidates) == 0 {
		return candidates
	}

	results, err := resilience.Call(ctx, r.rerankBreaker, func(ctx context.Context) ([]ports.RerankResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.RerankTimeout)
		defer cancel()
		return r.reranker.Rerank(callCtx, req.QueryText, candidates, req.TopKFinal)
	})
	if err != nil {
		r.log.Warn("rerank_degraded", "error", err, "candidates", len(candidates))
		return candidates
	}

	reranked := make([]domain.ScoredCandidate, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		candidate := candidates[res.Index]
		candidate.Reranked = true
		candidate.RerankScore = res.Score
		reranked = append(reranked, candidate)
	}
	if len(reranked) == 0 {
		return candidates
	}
	return reranked
}

func (r *HybridRetriever) fusionWeights(req domain.RetrievalRequest) map[string]float64 {
	weights := map[string]float64{
		domain.SourceVector:  r.cfg.VectorWeight,
		domain.SourceKeyword: r.cfg.KeywordWeight,
	}
	for source, weight := range req.FusionWeights {
		weights[source] = weight
	}
	return weights
}

// Index rebuilds the keyword index for a namespace and upserts the supplied
// precomputed vectors to the vector backend. Embedding stays with the
// ingestion collaborator; vectors may be nil for keyword-only corpora.
func (r *HybridRetriever) Index(ctx context.Context, namespace string, docs []domain.Document, vectors [][]float32) error {
	if vectors != nil && len(vectors) != len(docs) {
		return fmt.Errorf("%w: %d documents but %d vectors", domain.ErrInvalidRequest, len(docs), len(vectors))
	}
	if r.keyword != nil {
		r.keyword.Build(namespace, docs)
	}
	if r.vector == nil || vectors == nil {
		return nil
	}
	if err := r.vector.Upsert(ctx, docs, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// ClearNamespace drops a namespace from both retrieval sources.
func (r *HybridRetriever) ClearNamespace(ctx context.Context, namespace string) error {
	if r.keyword != nil {
		r.keyword.Clear(namespace)
	}
	if r.vector == nil {
		return nil
	}
	if err := r.vector.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	return nil
}

func classifyDependencyError(operation string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrDependencyTimeout, operation, err)
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrDependencyUnavailable, operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
