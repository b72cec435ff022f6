package usecase

import (
	"sort"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

const defaultRRFK = 60

type fusedEntry struct {
	candidate domain.ScoredCandidate
	rawSum    float64
}

// fuseRRF combines ordered source lists with weighted Reciprocal Rank
// Fusion: a document at 1-indexed rank r in a source contributes
// weight/(k+r) to its fused score. Documents appearing in several sources
// are merged into one candidate that keeps each source's rank and raw
// score. Ties break by summed raw score, then document id, so identical
// inputs always fuse to the identical ordering.
func fuseRRF(lists map[string][]domain.SearchHit, weights map[string]float64, k int) []domain.ScoredCandidate {
	if k <= 0 {
		k = defaultRRFK
	}

	sources := make([]string, 0, len(lists))
	for source := range lists {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	acc := make(map[string]*fusedEntry)
	for _, source := range sources {
		weight := weights[source]
		for i, hit := range lists[source] {
			rank := i + 1
			entry, ok := acc[hit.Document.ID]
			if !ok {
				entry = &fusedEntry{}
				entry.candidate.Document = hit.Document
				acc[hit.Document.ID] = entry
			}
			if len(entry.candidate.Embedding) == 0 && len(hit.Embedding) > 0 {
				entry.candidate.Embedding = hit.Embedding
			}
			if entry.candidate.Document.Content == "" && hit.Document.Content != "" {
				entry.candidate.Document = hit.Document
			}
			switch source {
			case domain.SourceVector:
				entry.candidate.VectorRank = rank
				entry.candidate.VectorScore = hit.Score
			case domain.SourceKeyword:
				entry.candidate.KeywordRank = rank
				entry.candidate.KeywordScore = hit.Score
			}
			entry.candidate.FusedScore += weight / float64(k+rank)
			entry.rawSum += hit.Score
		}
	}

	entries := make([]*fusedEntry, 0, len(acc))
	for _, entry := range acc {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.candidate.FusedScore != b.candidate.FusedScore {
			return a.candidate.FusedScore > b.candidate.FusedScore
		}
		if a.rawSum != b.rawSum {
			return a.rawSum > b.rawSum
		}
		return a.candidate.Document.ID < b.candidate.Document.ID
	})

	out := make([]domain.ScoredCandidate, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.candidate)
	}
	return out
}
