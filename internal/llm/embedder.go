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

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// EmbedTexts generates one embedding per input text in a single batch call.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.configured {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		c.logger.Warn("Embedding request failed",
			zap.String("model", c.embeddingModel),
			zap.Int("text_count", len(texts)),
			zap.Error(err),
		)
		return nil, &ModelError{Op: "embedding", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &ModelError{
			Op:  "embedding",
			Err: fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)),
		}
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		embeddings[i] = item.Embedding
	}

	c.logger.Debug("Embedding request completed",
		zap.Int("text_count", len(texts)),
		zap.Int("tokens_used", resp.Usage.PromptTokens),
	)

	return embeddings, nil
}

// EmbedText generates an embedding for a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &ModelError{Op: "embedding", Err: errors.New("empty text")}
	}

	embeddings, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ModelError{Op: "embedding", Err: errors.New("no embedding returned")}
	}
	return embeddings[0], nil
}
