package domain

import "fmt"

// Retrieval source names used as keys in fusion weight maps.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// SearchHit is one entry of an ordered result list from a single retrieval
// source. Embedding is populated only when the backend returns stored
// vectors alongside payloads.
type SearchHit struct {
	Document  Document
	Score     float64
	Embedding []float32
}

// ScoredCandidate carries a document through the retrieval pipeline together
// with its full score provenance. A source rank of 0 means the document was
// not returned by that source.
type ScoredCandidate struct {
	Document  Document  `json:"document"`
	Embedding []float32 `json:"-"`

	VectorRank   int     `json:"vector_rank,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	KeywordRank  int     `json:"keyword_rank,omitempty"`
	KeywordScore float64 `json:"keyword_score,omitempty"`

	FusedScore float64 `json:"fused_score"`

	// Reranked distinguishes a real zero rerank score from "rerank never ran".
	Reranked    bool    `json:"reranked,omitempty"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// RetrievalRequest describes one hybrid retrieval query. QueryVector is
// precomputed by the embedding collaborator; an empty vector degrades the
// request to keyword-only retrieval.
type RetrievalRequest struct {
	QueryText     string
	QueryVector   []float32
	Namespace     string
	TopKPerSource int
	TopKFinal     int
	Filters       Filter

	// FusionWeights maps source name to RRF weight. Weights need not sum
	// to one; missing entries fall back to the retriever defaults.
	FusionWeights map[string]float64

	// DiversityLambda trades relevance (1.0) against diversity (0.0).
	DiversityLambda float64

	Rerank bool
}

// Validate rejects malformed requests before any external call is made.
func (r RetrievalRequest) Validate() error {
	if r.QueryText == "" && len(r.QueryVector) == 0 {
		return fmt.Errorf("%w: query text and query vector are both empty", ErrInvalidRequest)
	}
	if r.TopKPerSource <= 0 {
		return fmt.Errorf("%w: top_k_per_source must be positive, got %d", ErrInvalidRequest, r.TopKPerSource)
	}
	if r.TopKFinal <= 0 {
		return fmt.Errorf("%w: top_k_final must be positive, got %d", ErrInvalidRequest, r.TopKFinal)
	}
	if r.DiversityLambda < 0 || r.DiversityLambda > 1 {
		return fmt.Errorf("%w: diversity_lambda must be in [0,1], got %g", ErrInvalidRequest, r.DiversityLambda)
	}
	for source, weight := range r.FusionWeights {
		if weight < 0 {
			return fmt.Errorf("%w: fusion weight for %q is negative", ErrInvalidRequest, source)
		}
	}
	return nil
}

// RetrievalResult is the final ranked candidate set. Degraded marks
// responses produced with fewer than all intended sources.
type RetrievalResult struct {
	Candidates    []ScoredCandidate `json:"candidates"`
	Degraded      bool              `json:"degraded"`
	FailedSources []string          `json:"failed_sources,omitempty"`
}
