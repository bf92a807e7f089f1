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

// Package relevance decides whether a request belongs to the SPL query
// domain at all, via an ordered cascade of cheap-to-expensive checks:
// literal syntax, domain vocabulary, security keywords, temporal phrases,
// anchor-embedding similarity, and finally a model-based classification.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/vecmath"
	"go.uber.org/zap"
)

// Detection method names, in cascade priority order.
const (
	MethodSyntax    = "syntax_match"
	MethodDomain    = "domain_match"
	MethodSecurity  = "security_keyword_match"
	MethodTime      = "time_pattern_match"
	MethodEmbedding = "embedding_match"
	MethodLLM       = "llm_intent"
)

// Stage confidences for the deterministic keyword stages.
const (
	syntaxConfidence   = 0.95
	domainConfidence   = 0.88
	securityConfidence = 0.80
	timeConfidence     = 0.75

	// DefaultEmbeddingThreshold is the minimum anchor similarity accepted
	// by the embedding stage.
	DefaultEmbeddingThreshold = 0.30
)

// Verdict is the outcome of a relevance classification.
type Verdict struct {
	IsRelated  bool    `json:"is_splunk_related"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// languageModel is the completion capability the LLM fallback stage needs.
type languageModel interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// embedder is the embedding capability the similarity stage needs.
type embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Classifier runs the relevance cascade. The anchor-embedding cache is
// computed once on first use and shared across requests.
type Classifier struct {
	model    languageModel
	embedder embedder
	logger   *zap.Logger

	syntaxKeywords   []string
	domainKeywords   []string
	securityKeywords []string
	timePatterns     []string
	intentAnchors    []string

	mu         sync.Mutex
	anchorEmbs [][]float32
}

// NewClassifier creates a classifier with the fixed SPL keyword sets.
func NewClassifier(model languageModel, emb embedder, logger *zap.Logger) *Classifier {
	return &Classifier{
		model:    model,
		embedder: emb,
		logger:   logger,
		syntaxKeywords: []string{
			"index=", "sourcetype=", "source=", "host=", "earliest=", "latest=",
			"| stats", "| table", "| search", "| where", "| fields", "| rename",
			"| eval", "| timechart", "| transaction", "| bucket", "| top",
			"| rare", "| chart", "| dedup", "| rex", "| spath", "| sort",
			"| head", "| tail", "| join", "| lookup", "| mvexpand", "| mvcombine",
			"| outputlookup", "| multikv", "| inputlookup", "| append",
			"| collect", "| datamodel", "| dbinspect", "| metadata", "| savedsearch",
		},
		domainKeywords: []string{
			"splunk", "spl", "dashboard", "search head", "indexer", "forwarder",
			"knowledge object", "search app", "security essentials", "itsi", "enterprise security",
			"monitoring console", "universal forwarder", "heavy forwarder", "deployment server",
			"search processing language", "search job", "event log", "field extraction", "pivot",
			"lookup table", "eventtypes", "tags", "props.conf", "transforms.conf",
		},
		securityKeywords: []string{
			"login", "logon", "authentication", "auth", "failed", "success", "failure",
			"security", "alert", "attack", "intrusion", "breach", "threat",
			"service", "process", "system", "registry", "change", "modification",
			"network", "connection", "traffic", "port", "firewall",
			"event", "log", "audit", "monitor", "detect", "search",
			"user", "account", "access", "permission", "group",
			"ssh", "rdp", "windows", "linux", "server",
		},
		timePatterns: []string{
			"last", "recent", "past", "today", "yesterday", "hour", "day", "week", "month",
		},
		intentAnchors: []string{
			"Find logs or events matching specific criteria",
			"Search for specific patterns in log data",
			"Filter events by time range",
			"Analyze system performance metrics",
			"Monitor security incidents",
			"Extract fields from log data",
			"Create statistics from event data",
			"Visualize trends in time-series data",
			"Calculate metrics from events",
			"Detect anomalies in system behavior",
			"Detect suspicious login activities",
			"Find unusual access patterns",
			"Monitor authentication failures",
			"Track network connections",
			"Investigate security alerts",
			"Monitor application performance",
			"Track system resource utilization",
			"Alert on service outages",
			"Analyze error rates",
			"Report on system availability",
		},
	}
}

// Classify runs the cascade with the default embedding threshold.
func (c *Classifier) Classify(ctx context.Context, text string) Verdict {
	return c.ClassifyThreshold(ctx, text, DefaultEmbeddingThreshold)
}

// ClassifyThreshold runs the cascade, short-circuiting at the first match.
// It never returns an error; adapter failures make the corresponding stage
// abstain.
func (c *Classifier) ClassifyThreshold(ctx context.Context, text string, embeddingThreshold float64) Verdict {
	q := strings.ToLower(text)

	if containsAny(q, c.syntaxKeywords) {
		return Verdict{IsRelated: true, Confidence: syntaxConfidence, Method: MethodSyntax}
	}
	if containsAny(q, c.domainKeywords) {
		return Verdict{IsRelated: true, Confidence: domainConfidence, Method: MethodDomain}
	}
	if containsAny(q, c.securityKeywords) {
		return Verdict{IsRelated: true, Confidence: securityConfidence, Method: MethodSecurity}
	}
	if containsAny(q, c.timePatterns) {
		return Verdict{IsRelated: true, Confidence: timeConfidence, Method: MethodTime}
	}

	if verdict, ok := c.embeddingStage(ctx, q, embeddingThreshold); ok {
		return verdict
	}

	return c.llmStage(ctx, text)
}

// embeddingStage compares the text against the cached intent anchors.
// The second return is false when the stage abstains, either because the
// similarity is below threshold or an adapter call failed.
func (c *Classifier) embeddingStage(ctx context.Context, q string, threshold float64) (Verdict, bool) {
	anchors, err := c.anchorEmbeddings(ctx)
	if err != nil {
		c.logger.Warn("Anchor embedding cache unavailable, skipping embedding stage", zap.Error(err))
		return Verdict{}, false
	}

	qvec, err := c.embedder.EmbedText(ctx, q)
	if err != nil {
		c.logger.Warn("Query embedding failed, skipping embedding stage", zap.Error(err))
		return Verdict{}, false
	}

	_, maxScore := vecmath.MaxCosine(qvec, anchors)
	if maxScore >= threshold {
		return Verdict{IsRelated: true, Confidence: maxScore, Method: MethodEmbedding}, true
	}
	return Verdict{}, false
}

// anchorEmbeddings returns the cached anchor embeddings, computing them on
// first use. A failed computation leaves the cache empty so a later call
// can retry; a successful one is reused for the process lifetime.
func (c *Classifier) anchorEmbeddings(ctx context.Context) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.anchorEmbs != nil {
		return c.anchorEmbs, nil
	}

	embs, err := c.embedder.EmbedTexts(ctx, c.intentAnchors)
	if err != nil {
		return nil, fmt.Errorf("failed to embed intent anchors: %w", err)
	}

	c.anchorEmbs = embs
	c.logger.Info("Intent anchor embeddings cached", zap.Int("anchor_count", len(embs)))
	return c.anchorEmbs, nil
}

// llmIntentResult is the strict JSON shape expected from the model.
type llmIntentResult struct {
	IsSplunkRelated bool    `json:"is_splunk_related"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
}

// llmStage asks the model to classify intent. This is the only stage that
// can fail open to "not related".
func (c *Classifier) llmStage(ctx context.Context, text string) Verdict {
	system := `You are an expert Splunk SPL intent classifier. ` +
		`Return only JSON: {"is_splunk_related": true/false, "confidence": float, "reasoning": str}. ` +
		`Classify if the query is about Splunk data search, analysis, or reporting.`

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Query: %s\nClassify intent.", text)},
	}

	var result llmIntentResult
	resp, err := c.model.Complete(ctx, messages, 0)
	if err == nil {
		err = json.Unmarshal([]byte(extractJSONObject(resp)), &result)
	}
	if err != nil {
		c.logger.Warn("LLM intent classification failed, defaulting to not related", zap.Error(err))
		return Verdict{IsRelated: false, Confidence: 0.0, Method: MethodLLM}
	}

	return Verdict{IsRelated: result.IsSplunkRelated, Confidence: result.Confidence, Method: MethodLLM}
}

// containsAny reports whether q contains any keyword as a substring.
func containsAny(q string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// extractJSONObject pulls the first {...} blob out of a model response,
// tolerating single-quoted keys.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.ReplaceAll(s[start:end+1], "'", `"`)
}
