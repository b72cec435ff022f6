package usecase

import (
	"math"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

// selectMMR re-selects candidates with Maximal Marginal Relevance: at each
// step the remaining candidate maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToSelected
//
// joins the selected set. Relevance is the rerank score when present,
// otherwise the fused score, min-max normalized to [0,1]. Candidates
// without embeddings contribute zero similarity, so they are neither
// penalized nor excluded. Ties keep the earlier fused rank.
func selectMMR(candidates []domain.ScoredCandidate, topK int, lambda float64) []domain.ScoredCandidate {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	relevance := normalizedRelevance(candidates)

	selected := make([]domain.ScoredCandidate, 0, topK)
	selectedIdx := make([]int, 0, topK)
	remaining := make([]int, len(candidates))
	for i := range candidates {
		remaining[i] = i
	}

	for len(selected) < topK && len(remaining) > 0 {
		bestPos := 0
		bestScore := math.Inf(-1)
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, sel := range selectedIdx {
				sim := cosineSimilarity(candidates[idx].Embedding, candidates[sel].Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[idx] - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}
		idx := remaining[bestPos]
		selected = append(selected, candidates[idx])
		selectedIdx = append(selectedIdx, idx)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

func normalizedRelevance(candidates []domain.ScoredCandidate) []float64 {
	raw := make([]float64, len(candidates))
	for i, c := range candidates {
		if c.Reranked {
			raw[i] = c.RerankScore
		} else {
			raw[i] = c.FusedScore
		}
	}

	minScore, maxScore := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < minScore {
			minScore = v
		}
		if v > maxScore {
			maxScore = v
		}
	}

	scoreRange := maxScore - minScore
	out := make([]float64, len(raw))
	for i, v := range raw {
		if scoreRange <= 0 {
			if v > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (v - minScore) / scoreRange
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
