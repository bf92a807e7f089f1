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

// Package pipeline orchestrates the full request flow: relevance gating,
// tenant resolution, prompt improvement, knowledge retrieval, and query
// synthesis.
package pipeline

import (
	"context"
	"fmt"

	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/relevance"
	"github.com/your-org/spl-assistant/internal/resolver"
	"github.com/your-org/spl-assistant/internal/retrieval"
	"github.com/your-org/spl-assistant/internal/synthesis"
	"go.uber.org/zap"
)

// GenerateEmbeddingThreshold is the stricter embedding-stage threshold
// applied on the generation path. Standalone relevance checks use the
// classifier default.
const GenerateEmbeddingThreshold = 0.35

// RelevanceResponse is the result of a standalone relevance check.
type RelevanceResponse struct {
	IsSplunkRelated bool    `json:"is_splunk_related"`
	Confidence      float64 `json:"confidence"`
	Method          string  `json:"method"`
}

// Response is the result of a generation request. On failure Success is
// false and Error carries the reason; the remaining fields are zero.
type Response struct {
	Success         bool     `json:"success"`
	SPLQuery        string   `json:"spl_query,omitempty"`
	Company         string   `json:"company,omitempty"`
	Index           string   `json:"index,omitempty"`
	Sourcetype      string   `json:"sourcetype,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	DetectionMethod string   `json:"detection_method,omitempty"`
	SyntaxValid     bool     `json:"syntax_valid"`
	Issues          []string `json:"issues,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// languageModel is the completion capability for prompt improvement.
type languageModel interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// Orchestrator wires the pipeline stages together. Stages are injected so
// tests can substitute any of them.
type Orchestrator struct {
	classifier        *relevance.Classifier
	resolver          *resolver.Resolver
	retriever         *retrieval.Retriever
	synthesizer       *synthesis.Synthesizer
	model             languageModel
	checkThreshold    float64
	generateThreshold float64
	logger            *zap.Logger
}

// NewOrchestrator assembles the pipeline. Non-positive thresholds select
// the defaults.
func NewOrchestrator(classifier *relevance.Classifier, res *resolver.Resolver,
	ret *retrieval.Retriever, syn *synthesis.Synthesizer, model languageModel,
	checkThreshold, generateThreshold float64, logger *zap.Logger) *Orchestrator {
	if checkThreshold <= 0 {
		checkThreshold = relevance.DefaultEmbeddingThreshold
	}
	if generateThreshold <= 0 {
		generateThreshold = GenerateEmbeddingThreshold
	}
	return &Orchestrator{
		classifier:        classifier,
		resolver:          res,
		retriever:         ret,
		synthesizer:       syn,
		model:             model,
		checkThreshold:    checkThreshold,
		generateThreshold: generateThreshold,
		logger:            logger,
	}
}

// CheckRelevance classifies whether the text asks for Splunk work, without
// generating anything. The check threshold applies here; the stricter one
// only gates generation.
func (o *Orchestrator) CheckRelevance(ctx context.Context, text string) RelevanceResponse {
	v := o.classifier.ClassifyThreshold(ctx, text, o.checkThreshold)
	return RelevanceResponse{
		IsSplunkRelated: v.IsRelated,
		Confidence:      v.Confidence,
		Method:          v.Method,
	}
}

// Generate runs the full pipeline for one request. The verbose flag
// elevates per-stage detail to info-level logs for this request only; the
// response shape is unchanged. Generate never panics: any stage panic is
// recovered into a failed response.
func (o *Orchestrator) Generate(ctx context.Context, text string, verbose bool) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Generation panicked", zap.Any("panic", r))
			resp = Response{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	verdict := o.classifier.ClassifyThreshold(ctx, text, o.generateThreshold)
	if !verdict.IsRelated {
		return Response{
			Success:         false,
			Error:           "Not Splunk-related",
			Confidence:      verdict.Confidence,
			DetectionMethod: verdict.Method,
		}
	}

	resolution := o.resolver.Resolve(ctx, text)
	o.logger.Info("Tenant context resolved",
		zap.String("company", resolution.CompanyName),
		zap.String("method", resolution.Method),
		zap.Float64("confidence", resolution.Confidence),
	)

	improved := o.improvePrompt(ctx, text)
	if verbose {
		o.logger.Info("Request improved for generation", zap.String("improved", improved))
	}

	knowledge := o.retriever.Retrieve(ctx, improved, resolution.IsCrossTenant)
	if verbose {
		o.logger.Info("Knowledge retrieved",
			zap.Int("passages", len(knowledge.Passages)),
			zap.Int("exemplars", len(knowledge.Exemplars)),
			zap.Int("auxiliary_length", len(knowledge.Auxiliary)),
		)
	}

	result := o.synthesizer.Synthesize(ctx, improved, resolution, knowledge.Exemplars, knowledge.Auxiliary)
	if verbose {
		o.logger.Info("Raw model output",
			zap.String("raw", result.Raw),
			zap.Bool("fallback", result.Fallback),
		)
	}

	return Response{
		Success:         true,
		SPLQuery:        result.Query,
		Company:         fmt.Sprintf("%s - %s", resolution.CompanyName, resolution.ProductName),
		Index:           resolution.Index,
		Sourcetype:      resolution.Sourcetype,
		Confidence:      resolution.Confidence,
		DetectionMethod: resolution.Method,
		SyntaxValid:     len(result.Issues) == 0,
		Issues:          result.Issues,
	}
}

// improvePrompt rewrites the request for better generation. The original
// text is used unchanged when the model is unavailable or returns nothing.
func (o *Orchestrator) improvePrompt(ctx context.Context, text string) string {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are an expert prompt engineer for Splunk SPL. Return only the improved prompt."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Original request:\n%s\n\nNow provide an improved prompt", text)},
	}
	improved, err := o.model.Complete(ctx, messages, 0)
	if err != nil || improved == "" {
		o.logger.Debug("Prompt improvement unavailable, using original request", zap.Error(err))
		return text
	}
	return improved
}
