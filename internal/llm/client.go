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

// Package llm wraps an OpenAI-compatible inference endpoint (Groq by
// default) and exposes the two capabilities the pipeline needs: chat
// completions and text embeddings. Calls are single-attempt with a
// caller-supplied context; retry policy belongs to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned when no API key or endpoint is configured.
	ErrUnavailable = errors.New("language model not configured")
)

// ModelError wraps a transport or API failure from the inference backend.
type ModelError struct {
	Op  string
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s failed: %v", e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Message is a single chat turn sent to the completion endpoint.
type Message struct {
	Role    string
	Content string
}

// Convenience role constants mirroring the OpenAI chat roles.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Client talks to an OpenAI-compatible chat/embedding API.
type Client struct {
	api            *openai.Client
	logger         *zap.Logger
	model          string
	embeddingModel string
	configured     bool
}

// Options configures a Client.
type Options struct {
	APIKey         string
	Endpoint       string
	Model          string
	EmbeddingModel string
}

// NewClient creates a client for the configured endpoint. A missing API key
// does not fail construction; calls on an unconfigured client return
// ErrUnavailable so the pipeline can degrade per stage.
func NewClient(opts Options, logger *zap.Logger) *Client {
	c := &Client{
		logger:         logger,
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		configured:     opts.APIKey != "",
	}

	if c.configured {
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.Endpoint != "" {
			cfg.BaseURL = opts.Endpoint
		}
		c.api = openai.NewClientWithConfig(cfg)
	}

	logger.Info("Language model client initialized",
		zap.String("endpoint", opts.Endpoint),
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
		zap.Bool("configured", c.configured),
	)

	return c
}

// Complete sends the messages to the chat endpoint and returns the raw text
// of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	if !c.configured {
		return "", ErrUnavailable
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: temperature,
	})
	if err != nil {
		c.logger.Warn("Chat completion failed",
			zap.String("model", c.model),
			zap.Error(err),
		)
		return "", &ModelError{Op: "completion", Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ModelError{Op: "completion", Err: errors.New("no choices returned")}
	}

	c.logger.Debug("Chat completion succeeded",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)

	return resp.Choices[0].Message.Content, nil
}
