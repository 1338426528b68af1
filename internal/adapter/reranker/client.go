package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client scores (question, passage) pairs against a cross-encoder reranking
// API and returns the indices of the most relevant passages, best first.
type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Rerank returns up to topN document indices ordered by relevance to query.
// With no provider configured it degrades to identity order.
func (c *Client) Rerank(ctx context.Context, query string, docs []string, topN int) ([]int, error) {
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	switch c.provider {
	case "jina":
		return c.rerankJina(ctx, query, docs, topN)
	case "cohere":
		return c.rerankCohere(ctx, query, docs, topN)
	}

	indices := make([]int, topN)
	for i := range indices {
		indices[i] = i
	}
	return indices, nil
}

func (c *Client) rerankJina(ctx context.Context, query string, docs []string, topN int) ([]int, error) {
	url := "https://api.jina.ai/v1/rerank"
	if c.baseURL != "" {
		url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":     "jina-reranker-v1-base-en",
		"query":     query,
		"documents": docs,
		"top_n":     topN,
	}
	return c.post(ctx, url, reqBody, topN, len(docs), "jina")
}

func (c *Client) rerankCohere(ctx context.Context, query string, docs []string, topN int) ([]int, error) {
	url := "https://api.cohere.ai/v1/rerank"
	if c.baseURL != "" {
		url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":            "rerank-english-v3.0",
		"query":            query,
		"documents":        docs,
		"top_n":            topN,
		"return_documents": false,
	}
	return c.post(ctx, url, reqBody, topN, len(docs), "cohere")
}

func (c *Client) post(ctx context.Context, url string, reqBody map[string]interface{}, topN, numDocs int, provider string) ([]int, error) {
	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s api error: %d", provider, resp.StatusCode)
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	indices := make([]int, 0, topN)
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < numDocs && len(indices) < topN {
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}
