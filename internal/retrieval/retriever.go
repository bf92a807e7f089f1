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

// Package retrieval gathers the supporting knowledge for a query: the
// top-K documentation passages (vector search refined by cross-encoder
// reranking), the most similar question/answer exemplars, and an optional
// model-driven extraction of concrete SPL elements. Everything here is
// best-effort: any adapter failure yields an empty result, never an error.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/chroma"
	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/vecmath"
	"go.uber.org/zap"
)

const (
	// DefaultOverfetch is how many passages vector search returns before
	// reranking.
	DefaultOverfetch = 8
	// DefaultTopK is how many passages survive reranking.
	DefaultTopK = 4
	// DefaultExemplarK is the exemplar count for standalone ranking.
	DefaultExemplarK = 5
	// DefaultSynthesisExemplarK is the exemplar count fed to synthesis.
	DefaultSynthesisExemplarK = 10

	// passageCharLimit caps how much of a passage goes into an extraction
	// prompt.
	passageCharLimit = 5000
)

// Knowledge is the retrieved context for one request. Empty is a legal
// value, not an error.
type Knowledge struct {
	Passages  []string
	Exemplars []catalog.Exemplar
	Auxiliary string
}

// vectorSearcher is the nearest-neighbor capability.
type vectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, n int) ([]chroma.Passage, error)
}

// reranker scores a (query, passage) pair for fine-grained relevance.
type reranker interface {
	Score(ctx context.Context, query, passage string) (float64, error)
}

// embedder is the embedding capability.
type embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// languageModel is the completion capability for the extraction pass.
type languageModel interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// Options configures retrieval depth.
type Options struct {
	Overfetch          int
	TopK               int
	ExemplarK          int
	SynthesisExemplarK int
}

// DefaultOptions returns the stock retrieval depths.
func DefaultOptions() Options {
	return Options{
		Overfetch:          DefaultOverfetch,
		TopK:               DefaultTopK,
		ExemplarK:          DefaultExemplarK,
		SynthesisExemplarK: DefaultSynthesisExemplarK,
	}
}

// Retriever gathers supporting knowledge for query synthesis.
type Retriever struct {
	store    vectorSearcher
	reranker reranker
	embedder embedder
	model    languageModel
	catalog  *catalog.Catalog
	opts     Options
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the loaded catalog.
func NewRetriever(store vectorSearcher, rr reranker, emb embedder, model languageModel,
	cat *catalog.Catalog, opts Options, logger *zap.Logger) *Retriever {
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOverfetch
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ExemplarK <= 0 {
		opts.ExemplarK = DefaultExemplarK
	}
	if opts.SynthesisExemplarK <= 0 {
		opts.SynthesisExemplarK = DefaultSynthesisExemplarK
	}
	return &Retriever{
		store:    store,
		reranker: rr,
		embedder: emb,
		model:    model,
		catalog:  cat,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve gathers passages, exemplars and auxiliary extraction context
// for the (improved) request. Failures degrade to empty fields.
func (r *Retriever) Retrieve(ctx context.Context, text string, crossTenant bool) Knowledge {
	var k Knowledge

	passages, err := r.searchPassages(ctx, text)
	if err != nil {
		r.logger.Warn("Passage retrieval failed, continuing without passages", zap.Error(err))
	} else {
		k.Passages = passages
	}

	k.Exemplars = r.RankExemplars(ctx, text, r.opts.SynthesisExemplarK, crossTenant)

	if len(k.Passages) > 0 && len(k.Exemplars) > 0 {
		k.Auxiliary = r.extractElements(ctx, text, k.Passages, k.Exemplars)
	}

	r.logger.Debug("Knowledge retrieval completed",
		zap.Int("passages", len(k.Passages)),
		zap.Int("exemplars", len(k.Exemplars)),
		zap.Int("auxiliary_length", len(k.Auxiliary)),
	)

	return k
}

// Exemplars ranks exemplars for a standalone request at the configured
// standalone depth, which is shallower than the synthesis depth.
func (r *Retriever) Exemplars(ctx context.Context, text string, crossTenant bool) []catalog.Exemplar {
	return r.RankExemplars(ctx, text, r.opts.ExemplarK, crossTenant)
}

// searchPassages over-fetches from the vector store, reranks against the
// query, and keeps the top K. Ties preserve retrieval order.
func (r *Retriever) searchPassages(ctx context.Context, text string) ([]string, error) {
	qvec, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	retrieved, err := r.store.Search(ctx, qvec, r.opts.Overfetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(retrieved) == 0 {
		return nil, nil
	}

	type scored struct {
		content string
		score   float64
	}
	ranked := make([]scored, 0, len(retrieved))
	for _, p := range retrieved {
		score, err := r.reranker.Score(ctx, text, p.Content)
		if err != nil {
			return nil, fmt.Errorf("rerank failed: %w", err)
		}
		ranked = append(ranked, scored{content: p.Content, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := r.opts.TopK
	if limit > len(ranked) {
		limit = len(ranked)
	}
	passages := make([]string, limit)
	for i := 0; i < limit; i++ {
		passages[i] = ranked[i].content
	}
	return passages, nil
}

// RankExemplars returns the k exemplars whose questions are most similar
// to the query. For cross-tenant scope, exemplars whose answers already
// target the wildcard index are preferred; if none qualify the unfiltered
// ranked set is returned.
func (r *Retriever) RankExemplars(ctx context.Context, text string, k int, crossTenant bool) []catalog.Exemplar {
	pool := r.catalog.Exemplars
	if crossTenant {
		var wildcard []catalog.Exemplar
		for _, e := range pool {
			if strings.HasPrefix(e.Answer, "index=*") {
				wildcard = append(wildcard, e)
			}
		}
		if len(wildcard) > 0 {
			pool = wildcard
		}
	}
	if len(pool) == 0 {
		return nil
	}

	questions := make([]string, len(pool))
	for i, e := range pool {
		questions[i] = e.Question
	}

	qvec, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		r.logger.Warn("Exemplar ranking failed: query embedding", zap.Error(err))
		return nil
	}
	qEmbs, err := r.embedder.EmbedTexts(ctx, questions)
	if err != nil {
		r.logger.Warn("Exemplar ranking failed: question embeddings", zap.Error(err))
		return nil
	}

	indices := make([]int, len(pool))
	scores := make([]float64, len(pool))
	for i := range pool {
		indices[i] = i
		scores[i] = vecmath.Cosine(qvec, qEmbs[i])
	}
	sort.SliceStable(indices, func(a, b int) bool { return scores[indices[a]] > scores[indices[b]] })

	if k > len(indices) {
		k = len(indices)
	}
	top := make([]catalog.Exemplar, k)
	for i := 0; i < k; i++ {
		top[i] = pool[indices[i]]
	}
	return top
}

// extractionTemplate instructs the model to mine concrete SPL elements
// from a (passage, exemplar) pair without generating a new query.
const extractionTemplate = `You are an expert Splunk SPL analyzer. Your task is to extract relevant SPL elements from the given inputs.

CONTEXT TYPES:
1. Documentation Chunk: explanations, command usage, examples, descriptions.
2. QA Pairs: each contains a user question and an SPL answer.

OBJECTIVE:
Extract useful SPL elements that are explicitly present or clearly implied. Keep outputs general and reusable (avoid hardcoded org-specific assumptions).

EXTRACT THE FOLLOWING (deduplicate across sources):
- Index names and sourcetypes (literal values as they appear).
- Field names and common aliases seen with coalesce patterns (e.g., user fields, source IP/host fields, service path fields).
- Search commands and syntax (search, where, eval, bin/bucket, stats, eventstats, streamstats, sort, head, top, dedup, join).
- Statistical functions (count, dc, sum, avg, min, max, percentile if present) and their typical usage contexts.
- Filtering conditions and operators (AND/OR/IN, match/regex, like, isnull/isnotnull).
- Time range specs and bucketing (earliest=..., latest=..., @d, bin/timechart span=...).
- Grouping/sorting/head patterns (stats by <fields>, sort - <field>, head N - NEVER use limit).
- Subsearch/join patterns (e.g., correlating two datasets; history vs today).
- Visualization commands (timechart, chart) and common parameter shapes.
- Any COMPLETE example queries present in the sources.

INSTRUCTIONS:
- DO NOT generate or rewrite a new query.
- Be specific about syntax and parameters; quote literal values as shown.
- If both sources mention the same concept, mention it once.
- Prioritize elements that directly relate to the QA question/answer.
- If nothing useful is present, return "No relevant information".

Question: %s
Documentation Chunk: %s
QA Question: %s
QA Answer: %s

RETURN FORMAT (clear labeled sections):
- Indexes & Sourcetypes
- Fields & Aliases (with typical coalesce groups)
- Commands & Syntax
- Stats & Aggregations
- Filters & Operators
- Time & Bucketing
- Grouping/Sorting/Head Commands
- Subsearch/Join Patterns
- Visualization
- Complete Examples`

// extractElements runs the secondary extraction pass over each retained
// passage, cycling exemplar indices modulo count when there are fewer
// exemplars than passages. Any failure yields empty auxiliary context.
func (r *Retriever) extractElements(ctx context.Context, text string, passages []string, exemplars []catalog.Exemplar) string {
	var partials []string
	for i, passage := range passages {
		e := exemplars[i%len(exemplars)]

		chunk := passage
		if len(chunk) > passageCharLimit {
			chunk = chunk[:passageCharLimit]
		}

		prompt := fmt.Sprintf(extractionTemplate, text, chunk, e.Question, e.Answer)
		answer, err := r.model.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, 0)
		if err != nil {
			r.logger.Warn("Element extraction failed, dropping auxiliary context", zap.Error(err))
			return ""
		}
		partials = append(partials, answer)
	}
	return strings.Join(partials, "\n")
}
