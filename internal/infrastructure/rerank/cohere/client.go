// Package cohere adapts the Cohere v2 rerank API to the Reranker port.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/blueonelabs/dealer-rag/internal/core/domain"
	"github.com/blueonelabs/dealer-rag/internal/core/ports"
)

const defaultModel = "rerank-v3.5"

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "cohere status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("cohere rerank status: %s", e.Status)
	}
	return fmt.Sprintf("cohere rerank status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit bounds outbound rerank calls; the API meters requests per
// minute, so callers queue on the limiter instead of burning quota on 429s.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Rerank(
	ctx context.Context,
	queryText string,
	candidates []domain.ScoredCandidate,
	topK int,
) ([]ports.RerankResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank rate limit: %w", err)
	}

	documents := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		documents = append(documents, candidate.Document.Content)
	}

	reqBody := map[string]any{
		"model":     c.model,
		"query":     queryText,
		"documents": documents,
		"top_n":     topK,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(payload),
		}
	}

	var rerankResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]ports.RerankResult, 0, len(rerankResp.Results))
	for _, result := range rerankResp.Results {
		out = append(out, ports.RerankResult{Index: result.Index, Score: result.RelevanceScore})
	}
	return out, nil
}
