// Copyright 2025 SPL Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rerank provides a client for the cross-encoder scoring sidecar.
// The sidecar scores a (query, passage) pair for fine-grained relevance and
// is used to refine coarse vector-search results.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client wraps the reranker HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a reranker client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// scoreRequest is the JSON payload for a scoring request.
type scoreRequest struct {
	Query   string `json:"query"`
	Passage string `json:"passage"`
}

// scoreResponse is the JSON response from the scoring endpoint.
type scoreResponse struct {
	Score float64 `json:"score"`
}

// Score returns the relevance score for a (query, passage) pair.
func (c *Client) Score(ctx context.Context, query, passage string) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Query: query, Passage: passage})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	url := fmt.Sprintf("%s/score", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reranker returned status %d", resp.StatusCode)
	}

	var scoreResp scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return 0, fmt.Errorf("failed to decode score response: %w", err)
	}

	c.logger.Debug("Passage scored",
		zap.Float64("score", scoreResp.Score),
		zap.Int("passage_length", len(passage)),
	)

	return scoreResp.Score, nil
}

// HealthCheck checks if the reranker sidecar is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check reranker health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reranker health check failed with status %d", resp.StatusCode)
	}
	return nil
}
