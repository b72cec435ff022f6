// Package keyword implements an in-memory BM25 index partitioned by
// namespace. Rebuilds swap in a complete replacement index so concurrent
// readers never observe a partially-built state.
package keyword

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

type Config struct {
	K1 float64
	B  float64
}

func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75}
}

type indexedDocument struct {
	doc    domain.Document
	terms  map[string]int
	length int
}

type namespaceIndex struct {
	docs      []indexedDocument
	docFreq   map[string]int
	avgLength float64
}

type Index struct {
	cfg Config

	mu         sync.RWMutex
	namespaces map[string]*namespaceIndex
}

func NewIndex(cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultConfig().K1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultConfig().B
	}
	return &Index{
		cfg:        cfg,
		namespaces: make(map[string]*namespaceIndex),
	}
}

// Build replaces the index for a namespace. The replacement is assembled
// off-lock and swapped in atomically.
func (idx *Index) Build(namespace string, docs []domain.Document) {
	next := &namespaceIndex{docFreq: make(map[string]int)}
	totalLength := 0
	for _, doc := range docs {
		terms := termFrequencies(doc.Content)
		length := 0
		for term, count := range terms {
			next.docFreq[term]++
			length += count
		}
		totalLength += length
		next.docs = append(next.docs, indexedDocument{doc: doc, terms: terms, length: length})
	}
	if len(next.docs) > 0 {
		next.avgLength = float64(totalLength) / float64(len(next.docs))
	}

	idx.mu.Lock()
	idx.namespaces[namespace] = next
	idx.mu.Unlock()
}

// Clear drops the index for a namespace.
func (idx *Index) Clear(namespace string) {
	idx.mu.Lock()
	delete(idx.namespaces, namespace)
	idx.mu.Unlock()
}

// Search scores every matching document against the query terms and returns
// at most topK hits ordered by score descending, document id ascending on
// ties. An empty or unknown namespace and a query with no matching terms
// both return an empty list.
func (idx *Index) Search(namespace, queryText string, topK int, filters domain.Filter) []domain.SearchHit {
	idx.mu.RLock()
	ns := idx.namespaces[namespace]
	idx.mu.RUnlock()

	if ns == nil || len(ns.docs) == 0 || topK <= 0 {
		return nil
	}

	queryTerms := tokenize(queryText)
	if len(queryTerms) == 0 {
		return nil
	}

	corpusSize := float64(len(ns.docs))
	hits := make([]domain.SearchHit, 0, topK)
	for _, entry := range ns.docs {
		if !filters.Matches(entry.doc.Metadata) {
			continue
		}
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(entry.terms[term])
			if tf == 0 {
				continue
			}
			df := float64(ns.docFreq[term])
			idf := math.Log(1 + (corpusSize-df+0.5)/(df+0.5))
			norm := 1 - idx.cfg.B + idx.cfg.B*float64(entry.length)/ns.avgLength
			score += idf * (tf * (idx.cfg.K1 + 1)) / (tf + idx.cfg.K1*norm)
		}
		if score > 0 {
			hits = append(hits, domain.SearchHit{Document: entry.doc, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func termFrequencies(text string) map[string]int {
	tokens := tokenize(text)
	out := make(map[string]int, len(tokens))
	for _, token := range tokens {
		out[token]++
	}
	return out
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
