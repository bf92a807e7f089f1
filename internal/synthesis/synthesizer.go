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

// Package synthesis turns a resolved request into a validated SPL query:
// prompt construction, model completion, deterministic cleaning, scope
// repair, and structural validation. When the model is unavailable a
// deterministic fallback query for the resolved scope is produced instead,
// so synthesis never fails outright.
package synthesis

import (
	"context"
	"regexp"
	"strings"

	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/resolver"
	"go.uber.org/zap"
)

// DefaultTemperature is the sampling temperature for query generation.
const DefaultTemperature float32 = 0.1

// languageModel is the completion capability.
type languageModel interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// Result is a synthesized query plus its validation findings. Issues are
// advisory; a non-empty list does not invalidate the result.
type Result struct {
	// Raw is the model output before cleaning, kept for diagnostics.
	Raw string
	// Query is the cleaned, scope-repaired SPL query.
	Query string
	// Issues are structural problems found by validation.
	Issues []string
	// Fallback is true when the model was unavailable and a canned query
	// was substituted.
	Fallback bool
}

// Synthesizer generates SPL queries for resolved requests.
type Synthesizer struct {
	model       languageModel
	catalog     *catalog.Catalog
	temperature float32
	logger      *zap.Logger
}

// NewSynthesizer creates a synthesizer over the loaded catalog. A
// temperature of zero selects the default.
func NewSynthesizer(model languageModel, cat *catalog.Catalog, temperature float32, logger *zap.Logger) *Synthesizer {
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	return &Synthesizer{
		model:       model,
		catalog:     cat,
		temperature: temperature,
		logger:      logger,
	}
}

// Synthesize builds the generation prompt from the improved request text,
// the tenant resolution, and retrieved knowledge, then cleans, repairs and
// validates the model's answer. The pipeline is clean, then scope repair,
// then validate, so validation always sees the final query text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, res resolver.Resolution,
	exemplars []catalog.Exemplar, auxiliary string) Result {

	sc := resolveScope(res, s.catalog)
	prompt := buildPrompt(text, res, sc, exemplars, auxiliary)

	var result Result
	raw, err := s.model.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, s.temperature)
	if err != nil {
		s.logger.Warn("Query generation failed, using deterministic fallback", zap.Error(err))
		raw = fallbackQuery(text, sc)
		result.Fallback = true
	}

	result.Raw = raw
	query := Clean(raw)
	query = repairScope(query, sc)
	result.Query = query
	result.Issues = Validate(query)

	if len(result.Issues) > 0 {
		s.logger.Debug("Generated query has validation issues",
			zap.Strings("issues", result.Issues))
	}
	return result
}

var earliestPattern = regexp.MustCompile(`earliest=\S+`)

// repairScope forces the query's first line to open with the resolved
// scope declaration. Wildcard scope is left as the model produced it. The
// full earliest clause from the original first line is preserved; when
// none is present a 24 hour window is applied.
func repairScope(query string, sc scope) string {
	if sc.NeedsExtraction || query == "" {
		return query
	}

	lines := strings.Split(query, "\n")
	first := lines[0]
	if strings.HasPrefix(first, "index="+sc.Index) {
		return query
	}

	earliest := earliestPattern.FindString(first)
	if earliest == "" {
		earliest = "earliest=-24h"
	}

	// Keep the search conditions, drop any conflicting scope tokens.
	var rest []string
	for _, tok := range strings.Fields(first) {
		if strings.HasPrefix(tok, "index=") ||
			strings.HasPrefix(tok, "sourcetype=") ||
			strings.HasPrefix(tok, "earliest=") {
			continue
		}
		rest = append(rest, tok)
	}

	repaired := sc.scopeDeclaration() + " " + earliest
	if len(rest) > 0 {
		repaired += " " + strings.Join(rest, " ")
	}
	lines[0] = repaired
	return strings.Join(lines, "\n")
}

// fallbackQuery is the deterministic query for the resolved scope when the
// model is unavailable. Well known request shapes get purpose-built
// queries; anything else gets a simple event count.
func fallbackQuery(text string, sc scope) string {
	decl := sc.scopeDeclaration()
	extract := ""
	if sc.NeedsExtraction {
		extract = "\n| rex field=index \"(?<company>\\w+)_\""
	}

	q := strings.ToLower(text)
	switch {
	case strings.Contains(q, "failed login") || strings.Contains(q, "login fail"):
		return decl + " earliest=-24h" +
			"\n| search EventCode=4625 OR match(_raw, \"Failed password|authentication failure|logon failure\")" + extract +
			"\n| eval user=coalesce(User_Name, user, account, dest_user)" +
			"\n| eval src=coalesce(src_ip, src, Source_Network_Address, host)" +
			"\n| stats count by user src" +
			"\n| sort - count" +
			"\n| head 10"
	case strings.Contains(q, "defender") && strings.Contains(q, "disable"):
		return decl + " earliest=-7d" +
			"\n| search (EventCode=5001 OR EventCode=5025 OR \"Defender disabled\" OR \"protection disabled\")" + extract +
			"\n| stats latest(_time) as last_event by host" +
			"\n| convert ctime(last_event) as Time" +
			"\n| sort - last_event"
	default:
		return decl + " earliest=-24h" + extract +
			"\n| stats count" +
			"\n| sort - count"
	}
}
