// Package qdrant adapts the Qdrant HTTP API to the VectorSearcher port.
// Documents live in one collection partitioned by a namespace payload key.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	namespace string,
	queryVector []float32,
	topK int,
	filters domain.Filter,
) ([]domain.SearchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
		"filter":       buildFilter(namespace, filters),
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/points/search", reqBody, &searchResp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		hits = append(hits, domain.SearchHit{
			Document:  documentFromPayload(item.Payload),
			Score:     item.Score,
			Embedding: item.Vector,
		})
	}
	return hits, nil
}

func (c *Client) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs/vectors mismatch: %d vs %d", len(docs), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(docs))
	for i, doc := range docs {
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"doc_id":    doc.ID,
				"content":   doc.Content,
				"namespace": doc.Namespace,
				"metadata":  doc.Metadata,
			},
		})
	}

	if err := c.do(ctx, http.MethodPut, "/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) DeleteNamespace(ctx context.Context, namespace string) error {
	reqBody := map[string]any{
		"filter": buildFilter(namespace, nil),
	}
	if err := c.do(ctx, http.MethodPost, "/points/delete?wait=true", reqBody, nil); err != nil {
		return fmt.Errorf("qdrant delete namespace: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("qdrant create collection status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func buildFilter(namespace string, filters domain.Filter) map[string]any {
	must := []map[string]any{
		{
			"key":   "namespace",
			"match": map[string]any{"value": namespace},
		},
	}
	for key, value := range filters {
		must = append(must, map[string]any{
			"key":   "metadata." + key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

func documentFromPayload(payload map[string]any) domain.Document {
	doc := domain.Document{
		ID:        stringValue(payload["doc_id"]),
		Content:   stringValue(payload["content"]),
		Namespace: stringValue(payload["namespace"]),
	}
	if raw, ok := payload["metadata"].(map[string]any); ok && len(raw) > 0 {
		doc.Metadata = make(map[string]string, len(raw))
		for key, value := range raw {
			doc.Metadata[key] = stringValue(value)
		}
	}
	return doc
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
