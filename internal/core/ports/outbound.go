package ports

import (
	"context"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

// VectorSearcher queries the external similarity-search backend. Hits come
// back ordered by similarity, best first. Empty results are valid.
type VectorSearcher interface {
	Search(ctx context.Context, namespace string, queryVector []float32, topK int, filters domain.Filter) ([]domain.SearchHit, error)
	Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// KeywordSearcher is the in-memory lexical index. Build replaces the index
// for a namespace atomically; Search is synchronous and never fails, an
// empty or unmatched query yields an empty list.
type KeywordSearcher interface {
	Build(namespace string, docs []domain.Document)
	Search(namespace, queryText string, topK int, filters domain.Filter) []domain.SearchHit
	Clear(namespace string)
}

// RerankResult references a candidate by its position in the submitted list.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker orders candidates by precision relevance to the query text.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, candidates []domain.ScoredCandidate, topK int) ([]RerankResult, error)
}

// QueryEmbedder turns query text into the vector consumed by the retriever.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
