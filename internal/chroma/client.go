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

// Package chroma wraps the ChromaDB REST API used as the passage vector
// store. The documentation corpus is chunked and loaded once at startup;
// afterwards the store only serves nearest-neighbor searches.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client wraps the ChromaDB REST API for a single collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a ChromaDB client.
func NewClient(baseURL, collection string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Passage is a ranked passage returned from a vector search.
type Passage struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// searchRequest is the Chroma query payload.
type searchRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
}

// searchResponse is the Chroma query response shape.
type searchResponse struct {
	IDs       [][]string  `json:"ids"`
	Documents [][]string  `json:"documents"`
	Distances [][]float64 `json:"distances"`
}

// apiError is an error response from ChromaDB.
type apiError struct {
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("ChromaDB error [%s]: %s", e.Type, e.Detail)
}

// post performs a POST request against the collection API with structured
// error handling.
func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(resp.Body)

		var chromaErr apiError
		if json.Unmarshal(raw, &chromaErr) == nil && chromaErr.Detail != "" {
			return nil, chromaErr
		}
		return nil, fmt.Errorf("ChromaDB returned status %d: %s", resp.StatusCode, string(raw))
	}

	return resp, nil
}

// AddPassages stores passage chunks with their embeddings. Called once at
// startup when the documentation corpus is ingested.
func (c *Client) AddPassages(ctx context.Context, chunks []string, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("passage_%d", i)
	}

	payload := map[string]interface{}{
		"documents":  chunks,
		"ids":        ids,
		"embeddings": embeddings,
	}

	resp, err := c.post(ctx, "add", payload)
	if err != nil {
		c.logger.Error("Failed to add passages",
			zap.String("collection", c.collection),
			zap.Int("chunk_count", len(chunks)),
			zap.Error(err),
		)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Info("Passages added to vector store",
		zap.String("collection", c.collection),
		zap.Int("chunk_count", len(chunks)),
	)
	return nil
}

// Search returns the n nearest passages for the query embedding, most
// similar first.
func (c *Client) Search(ctx context.Context, queryEmbedding []float32, n int) ([]Passage, error) {
	resp, err := c.post(ctx, "query", searchRequest{
		QueryEmbeddings: [][]float32{queryEmbedding},
		NResults:        n,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	var passages []Passage
	if len(searchResp.IDs) > 0 {
		for i, id := range searchResp.IDs[0] {
			p := Passage{ID: id}
			if len(searchResp.Documents) > 0 && i < len(searchResp.Documents[0]) {
				p.Content = searchResp.Documents[0][i]
			}
			if len(searchResp.Distances) > 0 && i < len(searchResp.Distances[0]) {
				p.Distance = searchResp.Distances[0][i]
			}
			passages = append(passages, p)
		}
	}

	c.logger.Debug("Vector search completed",
		zap.String("collection", c.collection),
		zap.Int("requested", n),
		zap.Int("returned", len(passages)),
	)

	return passages, nil
}

// HealthCheck checks if ChromaDB is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/heartbeat", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check ChromaDB health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ChromaDB health check failed with status %d", resp.StatusCode)
	}
	return nil
}
