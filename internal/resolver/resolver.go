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

// Package resolver selects which company (tenant) and data scope a query
// should target. Multiple strategies compete: direct name matching refined
// by platform context, cross-company detection, generic-query detection,
// model-based catalog analysis, and embedding similarity. Each strategy
// either produces a candidate or abstains; a pure max-confidence
// arbitration step picks the winner.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/vecmath"
	"go.uber.org/zap"
)

// Detection method names.
const (
	MethodDirectMatch     = "company_name_direct_match"
	MethodContextKeyword  = "context_keyword_match"
	MethodLLMCrossTenant  = "llm_cross_company_detection"
	MethodFallbackPattern = "fallback_pattern_detection"
	MethodGenericCross    = "generic_cross_company_suggestion"
	MethodLLMAnalysis     = "llm_analysis"
	MethodSemantic        = "semantic_matching"
	MethodDefaultFallback = "default_fallback"
	MethodFallback        = "fallback"
)

const (
	// DefaultCrossTenantThreshold is the minimum model confidence for
	// accepting a cross-company classification.
	DefaultCrossTenantThreshold = 0.8
	// DefaultGenericConfidence is the confidence assigned to a generic
	// cross-company suggestion.
	DefaultGenericConfidence = 0.75

	// CrossTenantOrdinal marks the synthetic "all companies" pseudo-entry.
	CrossTenantOrdinal = -1
	// WildcardIndex is the cross-company data scope.
	WildcardIndex = "*"
)

// Resolution is the resolved tenant context for a query.
type Resolution struct {
	CompanyName   string   `json:"company_name"`
	ProductName   string   `json:"product_name"`
	Index         string   `json:"index"`
	Sourcetype    string   `json:"sourcetype"`
	DataModels    []string `json:"data_model"`
	Confidence    float64  `json:"confidence_score"`
	Method        string   `json:"method"`
	TenantOrdinal int      `json:"company_index"`
	IsCrossTenant bool     `json:"is_cross_company"`
}

// Options holds the hand-tuned acceptance thresholds. They are preserved
// as configurable defaults rather than derived values.
type Options struct {
	CrossTenantThreshold float64
	GenericConfidence    float64
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		CrossTenantThreshold: DefaultCrossTenantThreshold,
		GenericConfidence:    DefaultGenericConfidence,
	}
}

// languageModel is the completion capability the strategies need.
type languageModel interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// embedder is the embedding capability the semantic strategy needs.
type embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Resolver runs the strategy chain over a loaded catalog.
type Resolver struct {
	catalog  *catalog.Catalog
	model    languageModel
	embedder embedder
	opts     Options
	logger   *zap.Logger
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(cat *catalog.Catalog, model languageModel, emb embedder, opts Options, logger *zap.Logger) *Resolver {
	if opts.CrossTenantThreshold <= 0 {
		opts.CrossTenantThreshold = DefaultCrossTenantThreshold
	}
	if opts.GenericConfidence <= 0 {
		opts.GenericConfidence = DefaultGenericConfidence
	}
	return &Resolver{
		catalog:  cat,
		model:    model,
		embedder: emb,
		opts:     opts,
		logger:   logger,
	}
}

// Resolve selects the tenant context for the query. It always returns a
// result; strategy failures are treated as abstentions, never errors.
func (r *Resolver) Resolve(ctx context.Context, text string) Resolution {
	if len(r.catalog.Tenants) == 0 {
		def := catalog.DefaultTenant()
		return Resolution{
			CompanyName: def.CompanyName,
			ProductName: def.ProductName,
			Index:       def.Index,
			Sourcetype:  def.Sourcetype,
			DataModels:  def.DataModels,
			Confidence:  0.5,
			Method:      MethodFallback,
		}
	}

	// Stage 1: explicit company mention wins outright.
	direct, directOK := r.directStrategy(ctx, text)
	if directOK && direct.Method == MethodDirectMatch {
		r.logger.Info("Direct company match",
			zap.String("company", direct.CompanyName),
			zap.Float64("confidence", direct.Confidence),
		)
		return direct
	}

	// Stage 2: cross-company detection, only without a specific company.
	if cross, ok := r.crossTenantStrategy(ctx, text); ok {
		r.logger.Info("Cross-company query detected",
			zap.Float64("confidence", cross.Confidence),
			zap.String("method", cross.Method),
		)
		return cross
	}

	// Stage 3: generic queries with enterprise scope suggest cross-company.
	if generic, ok := r.genericStrategy(text); ok {
		r.logger.Info("Generic query detected, suggesting cross-company analysis")
		return generic
	}

	var candidates []Resolution
	if directOK {
		candidates = append(candidates, direct)
	}

	if llmRes, explicit, ok := r.llmCatalogStrategy(ctx, text); ok {
		if explicit {
			return llmRes
		}
		candidates = append(candidates, llmRes)
	}

	if sem, ok := r.semanticStrategy(ctx, text); ok {
		candidates = append(candidates, sem)
	}

	best, ok := pickBest(candidates)
	if !ok {
		return r.tenantResolution(0, 0.3, MethodDefaultFallback)
	}
	return best
}

// pickBest is the arbitration step: max confidence over the candidate set,
// independent of candidate order for distinct confidences.
func pickBest(candidates []Resolution) (Resolution, bool) {
	if len(candidates) == 0 {
		return Resolution{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// tenantResolution builds a Resolution from a catalog ordinal.
func (r *Resolver) tenantResolution(ordinal int, confidence float64, method string) Resolution {
	t := r.catalog.Tenants[ordinal]
	return Resolution{
		CompanyName:   t.CompanyName,
		ProductName:   t.ProductName,
		Index:         t.Index,
		Sourcetype:    t.Sourcetype,
		DataModels:    t.DataModels,
		Confidence:    confidence,
		Method:        method,
		TenantOrdinal: ordinal,
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// directStrategy matches tenant names verbatim (refined by platform
// context) and otherwise scores weighted keyword overlap per tenant.
func (r *Resolver) directStrategy(ctx context.Context, text string) (Resolution, bool) {
	q := strings.ToLower(text)
	words := tokenize(q)

	type directMatch struct {
		ordinal    int
		confidence float64
	}
	var matches []directMatch

	for i, t := range r.catalog.Tenants {
		if t.CompanyName == "" {
			continue
		}
		if strings.Contains(q, strings.ToLower(t.CompanyName)) {
			matches = append(matches, directMatch{ordinal: i, confidence: 0.95})
		}
	}

	if len(matches) > 0 {
		// Platform context only refines explicit matches, so the model
		// call is deferred until one exists.
		platform := r.detectPlatform(ctx, text)
		hasWindows := platform.Platform == PlatformWindows
		hasLinux := platform.Platform == PlatformLinux

		for i := range matches {
			product := strings.ToLower(r.catalog.Tenants[matches[i].ordinal].ProductName)
			switch {
			case hasLinux && strings.Contains(product, "linux"):
				matches[i].confidence = 0.98
			case hasWindows && strings.Contains(product, "win"):
				matches[i].confidence = 0.98
			case !hasLinux && strings.Contains(product, "win"):
				// No explicit Linux context defaults toward Windows.
				matches[i].confidence = 0.96
			}
		}

		best := matches[0]
		for _, m := range matches[1:] {
			if m.confidence > best.confidence {
				best = m
			}
		}
		return r.tenantResolution(best.ordinal, best.confidence, MethodDirectMatch), true
	}

	// Weighted keyword overlap fallback.
	bestIdx, bestScore := -1, 0.0
	for i, t := range r.catalog.Tenants {
		score := keywordScore(words, t)
		if bestIdx == -1 || score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx >= 0 {
		return r.tenantResolution(bestIdx, bestScore, MethodContextKeyword), true
	}

	return r.tenantResolution(0, 0.1, MethodDefaultFallback), true
}

// keywordScore computes the weighted overlap between the query words and a
// tenant profile: 0.3*common + 0.4*frequency + 0.3*domain overlap, capped
// at 1.0 so the common-word term cannot push a score past a valid
// confidence.
func keywordScore(words []string, t catalog.TenantProfile) float64 {
	profile := strings.ToLower(t.Description())
	tokens := tokenSet(profile)

	common := 0
	matched := 0
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, seen := wordSet[w]; !seen {
			wordSet[w] = struct{}{}
			if _, ok := tokens[w]; ok {
				common++
			}
		}
		if _, ok := tokens[w]; ok {
			matched++
		}
	}

	freq := 0.0
	if len(words) > 0 {
		freq = float64(matched) / float64(len(words))
	}

	domainTokens := tokenSet(strings.ToLower(t.Domain + " " + t.UseCases))
	domainCommon := 0
	for w := range wordSet {
		if _, ok := domainTokens[w]; ok {
			domainCommon++
		}
	}
	domainMatch := 0.0
	if len(domainTokens) > 0 {
		domainMatch = float64(domainCommon) / float64(len(domainTokens))
	}

	return math.Min(float64(common)*0.3+freq*0.4+domainMatch*0.3, 1.0)
}

// crossCompanyResult is the strict JSON shape expected from the model.
type crossCompanyResult struct {
	IsCrossCompany bool    `json:"is_cross_company"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

var crossCompanyPhrases = []string{
	"all companies", "all organizations", "enterprise-wide", "organization-wide",
	"across all companies", "across all organizations", "targeting all organizations",
}

// crossTenantStrategy detects queries that explicitly span all companies.
// Hard rule: a verbatim tenant name anywhere in the text rejects the
// classification regardless of model output.
func (r *Resolver) crossTenantStrategy(ctx context.Context, text string) (Resolution, bool) {
	q := strings.ToLower(text)
	for _, name := range r.catalog.Names() {
		if name != "" && strings.Contains(q, strings.ToLower(name)) {
			r.logger.Debug("Company name present, rejecting cross-company classification",
				zap.String("company", name))
			return Resolution{}, false
		}
	}

	system := `You are an expert at detecting cross-company/enterprise-wide queries for Splunk analysis.

CRITICAL: Only classify as cross-company if the query EXPLICITLY requires data from ALL companies/organizations.

EXPLICIT CROSS-COMPANY INDICATORS (must be present):
- Clear mentions: "all companies", "enterprise-wide", "organization-wide", "across all organizations"
- Comparative analysis: "compare across companies", "enterprise trends", "organization-wide patterns"
- Explicit scope: "every company", "entire organization", "targeting all organizations"

SINGLE COMPANY INDICATORS (strong rejection):
- ANY specific company name mentioned in the query
- Company-specific context: "At [Company]", "[Company] logs", "[Company] systems"

IMPORTANT RULES:
1. If ANY company name is mentioned, ALWAYS single company (confidence = 0.1)
2. Only return cross-company if confidence >= 0.8 AND no company names present
3. Be very conservative: when in doubt, choose single company

Return ONLY valid JSON:
{
    "is_cross_company": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "brief explanation of decision"
}`

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Query: %s", text)},
	}

	resp, err := r.model.Complete(ctx, messages, 0.1)
	if err == nil {
		var result crossCompanyResult
		if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp)), &result); jsonErr == nil {
			if result.IsCrossCompany && result.Confidence >= r.opts.CrossTenantThreshold {
				return crossTenantResolution(result.Confidence, MethodLLMCrossTenant), true
			}
			r.logger.Debug("Model rejected cross-company classification",
				zap.Float64("confidence", result.Confidence),
				zap.String("reasoning", result.Reasoning),
			)
			return Resolution{}, false
		}
		err = fmt.Errorf("unparseable cross-company response")
	}

	r.logger.Debug("Cross-company detection falling back to phrase matching", zap.Error(err))
	for _, phrase := range crossCompanyPhrases {
		if strings.Contains(q, phrase) {
			return crossTenantResolution(0.90, MethodFallbackPattern), true
		}
	}
	return Resolution{}, false
}

// crossTenantResolution builds the synthetic "all companies" pseudo-entry.
func crossTenantResolution(confidence float64, method string) Resolution {
	return Resolution{
		CompanyName:   "All Companies",
		ProductName:   "Cross-Company Analysis",
		Index:         WildcardIndex,
		Sourcetype:    "",
		DataModels:    []string{},
		Confidence:    confidence,
		Method:        method,
		TenantOrdinal: CrossTenantOrdinal,
		IsCrossTenant: true,
	}
}

var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`monitor\s+.*\s+(on|across|from)\s+.*servers?`),
	regexp.MustCompile(`show\s+.*\s+(login|authentication|access)\s+attempts?`),
	regexp.MustCompile(`find\s+.*\s+(suspicious|malicious|unusual)\s+`),
	regexp.MustCompile(`detect\s+.*\s+(attack|intrusion|threat)`),
	regexp.MustCompile(`analyze\s+.*\s+(patterns?|trends?|behavior)`),
	regexp.MustCompile(`track\s+.*\s+(changes?|modifications?)`),
	regexp.MustCompile(`identify\s+.*\s+(systems?|hosts?|users?)\s+with`),
}

var enterpriseIndicators = []string{"servers", "systems", "hosts", "machines", "devices", "endpoints"}

// genericStrategy flags generic monitoring/detection queries with plural
// infrastructure scope and no "for <company>" phrase as cross-company
// suggestions.
func (r *Resolver) genericStrategy(text string) (Resolution, bool) {
	q := strings.ToLower(text)

	for _, name := range r.catalog.Names() {
		if name != "" && strings.Contains(q, "for "+strings.ToLower(name)) {
			return Resolution{}, false
		}
	}

	isGeneric := false
	for _, p := range genericPatterns {
		if p.MatchString(q) {
			isGeneric = true
			break
		}
	}
	if !isGeneric {
		return Resolution{}, false
	}

	for _, indicator := range enterpriseIndicators {
		if strings.Contains(q, indicator) {
			return crossTenantResolution(r.opts.GenericConfidence, MethodGenericCross), true
		}
	}
	return Resolution{}, false
}

// catalogAnalysisResult is the strict JSON shape expected from the model.
type catalogAnalysisResult struct {
	SelectedCompanyIndex     int     `json:"selected_company_index"`
	ConfidenceScore          float64 `json:"confidence_score"`
	Reasoning                string  `json:"reasoning"`
	ExplicitCompanyMentioned bool    `json:"explicit_company_mentioned"`
	CompanyNameMentioned     string  `json:"company_name_mentioned"`
	QueryContext             string  `json:"query_context"`
}

// llmCatalogStrategy presents the whole catalog as numbered descriptions
// and asks the model to pick one. The second return reports whether an
// explicit company mention was detected (confidence floored at 0.9).
func (r *Resolver) llmCatalogStrategy(ctx context.Context, text string) (Resolution, bool, bool) {
	var descs []string
	for i, t := range r.catalog.Tenants {
		descs = append(descs, fmt.Sprintf(
			"Company %d: %s - %s\n- Domain: %s\n- Use Cases: %s\n- Index: %s\n- Sourcetype: %s\n- Data Models: %s",
			i, t.CompanyName, t.ProductName, t.Domain, t.UseCases, t.Index, t.Sourcetype,
			strings.Join(t.DataModels, ", ")))
	}

	prompt := fmt.Sprintf(`Analyze the query and select the most appropriate company configuration.
QUERY: %s

ANALYSIS STEPS:
1. Check explicit company/abbreviation in the query.
2. Consider technological context (systems, applications, data types).
3. Match domain/use cases with the query's intent.

Companies available: %s

COMPANIES:
%s

Respond as JSON with keys: selected_company_index (0-based), confidence_score (0.0-1.0), reasoning, explicit_company_mentioned (true/false), company_name_mentioned, query_context (brief).`,
		text, strings.Join(r.catalog.Names(), ", "), strings.Join(descs, "\n"))

	resp, err := r.model.Complete(ctx, userMessage(prompt), 0)
	if err != nil {
		r.logger.Debug("LLM catalog analysis abstained", zap.Error(err))
		return Resolution{}, false, false
	}

	var result catalogAnalysisResult
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &result); err != nil {
		r.logger.Debug("LLM catalog analysis returned unparseable JSON", zap.Error(err))
		return Resolution{}, false, false
	}

	idx := result.SelectedCompanyIndex
	if idx < 0 || idx >= len(r.catalog.Tenants) {
		idx = 0
	}

	confidence := result.ConfidenceScore
	if result.ExplicitCompanyMentioned && confidence < 0.9 {
		confidence = 0.9
	}

	return r.tenantResolution(idx, confidence, MethodLLMAnalysis), result.ExplicitCompanyMentioned, true
}

// semanticStrategy picks the tenant whose flattened description is most
// similar to the query embedding.
func (r *Resolver) semanticStrategy(ctx context.Context, text string) (Resolution, bool) {
	descEmbs, err := r.embedder.EmbedTexts(ctx, r.catalog.Descriptions())
	if err != nil {
		r.logger.Debug("Semantic strategy abstained: description embedding failed", zap.Error(err))
		return Resolution{}, false
	}

	qvec, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		r.logger.Debug("Semantic strategy abstained: query embedding failed", zap.Error(err))
		return Resolution{}, false
	}

	idx, score := vecmath.MaxCosine(qvec, descEmbs)
	if idx < 0 {
		return Resolution{}, false
	}
	return r.tenantResolution(idx, score, MethodSemantic), true
}

// tokenize splits text into lowercase word tokens longer than two runes.
func tokenize(q string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(q, -1) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// tokenSet returns the set of word tokens in text.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(text, -1) {
		set[w] = struct{}{}
	}
	return set
}

// userMessage wraps a prompt as a single user turn.
func userMessage(prompt string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: prompt}}
}

// extractJSONObject pulls the outermost {...} blob out of a model
// response, tolerating single-quoted keys.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.ReplaceAll(s[start:end+1], "'", `"`)
}
