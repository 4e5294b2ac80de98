// Package retrieval queries an external knowledge service for comp guides
// and patch notes relevant to the current game state. The service is an
// optional boundary: callers degrade gracefully when it is down.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the retrieval service over HTTP.
type Client struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryResponse struct {
	Documents []string `json:"documents"`
}

// NewClient creates a retrieval client. topK bounds results per query.
func NewClient(baseURL string, topK int, timeout time.Duration) *Client {
	if topK <= 0 {
		topK = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		topK:       topK,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Query returns up to limit documents for the query string. limit <= 0 uses
// the client default.
func (c *Client) Query(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 || limit > c.topK {
		limit = c.topK
	}
	jsonData, err := json.Marshal(queryRequest{Query: query, TopK: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/query", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval service returned status %d: %s", resp.StatusCode, body)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return qr.Documents, nil
}
