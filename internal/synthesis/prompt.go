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

package synthesis

import (
	"fmt"
	"strings"

	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/resolver"
)

// crossSourcetypeClause is the sourcetype disjunction used for wildcard
// scope queries.
const crossSourcetypeClause = "(sourcetype=WinEventLog OR sourcetype=linux_secure OR sourcetype=syslog OR sourcetype=linux_syslog)"

// promptExemplarCount is how many exemplars are quoted in the synthesis
// prompt.
const promptExemplarCount = 2

// scope is the normalized index/sourcetype declaration a query must open
// with.
type scope struct {
	Index            string
	SourcetypeClause string
	// NeedsExtraction is true for wildcard scope, where the query must
	// recover the tenant from the index name.
	NeedsExtraction bool
}

// scopeDeclaration is the literal prefix of a well-scoped first line.
func (s scope) scopeDeclaration() string {
	return fmt.Sprintf("index=%s %s", s.Index, s.SourcetypeClause)
}

// resolveScope normalizes the resolution's index and sourcetype into the
// declaration the generated query must carry. Cross-tenant resolutions map
// to the wildcard scope. A single-tenant index missing the platform suffix
// is corrected from the catalog when the tenant is known, otherwise it
// defaults to the Windows form.
func resolveScope(res resolver.Resolution, cat *catalog.Catalog) scope {
	if res.IsCrossTenant || res.Index == "*" {
		return scope{
			Index:            "*",
			SourcetypeClause: crossSourcetypeClause,
			NeedsExtraction:  true,
		}
	}

	index := res.Index
	if index == "" {
		index = "main"
	}
	sourcetype := res.Sourcetype
	if sourcetype == "" {
		sourcetype = "WinEventLog"
	}

	if !strings.HasSuffix(index, "_win") && !strings.HasSuffix(index, "_linux") {
		matched := false
		for _, t := range cat.Tenants {
			if strings.EqualFold(t.CompanyName, res.CompanyName) {
				index = t.Index
				sourcetype = t.Sourcetype
				matched = true
				break
			}
		}
		if !matched {
			index = res.CompanyName + "_win"
			sourcetype = "WinEventLog"
		}
	}

	return scope{
		Index:            index,
		SourcetypeClause: "sourcetype=" + sourcetype,
	}
}

// unifiedTemplate is the single generation prompt. Placeholders: scope
// instruction, target index, sourcetype clause, tenant extraction step,
// company name, request text.
const unifiedTemplate = `You are an expert Splunk SPL query generator. Create a single, correct, efficient query using standard Splunk search syntax.

CRITICAL REQUIREMENTS:
INDEX FORMAT: Must use EXACT format from the reference catalog:
- Single company: index=CompanyName_win or index=CompanyName_linux
- Cross-company: index=* with multiple sourcetypes

MANDATORY INDEX & SOURCETYPE RULES:
%s

FIELD NORMALIZATION STANDARDS:
- user := coalesce(TargetUserName, User_Name, user, account, dest_user)
- src := coalesce(Source_Network_Address, src_ip, src, rhost, host)
- Windows events: Use EventCode (4624=login success, 4625=login failure, 5001/5025=Defender events)
- Linux events: Use text patterns ("Accepted password", "Failed password", "sudo")

QUERY STRUCTURE:
1. index=%s %s earliest=<timeframe>
2. Add specific search conditions based on request
3. Apply field normalization with eval/coalesce
%s4. Use appropriate aggregations (stats, timechart, etc.)
5. Sort results and use 'head' command for limiting (NEVER use 'limit')

Company Context: %s
User Request: %s

Generate ONLY the SPL query (no explanations). Use 'head' command instead of 'limit' for result limiting:`

// buildPrompt assembles the generation prompt from the request, resolved
// scope, ranked exemplars and optional extracted-element context.
func buildPrompt(text string, res resolver.Resolution, sc scope, exemplars []catalog.Exemplar, auxiliary string) string {
	var scopeInstruction, extractionStep string
	if sc.NeedsExtraction {
		scopeInstruction = "Cross-company query: MUST use index=* " + crossSourcetypeClause
		extractionStep = "3. Extract company with: rex field=index \"(?<company>\\w+)_\"\n"
	} else {
		scopeInstruction = fmt.Sprintf("Single company query: MUST use exact index format: %s %s", sc.Index, sc.SourcetypeClause)
		extractionStep = "3. No company extraction needed\n"
	}

	prompt := fmt.Sprintf(unifiedTemplate,
		scopeInstruction,
		sc.Index,
		sc.SourcetypeClause,
		extractionStep,
		res.CompanyName,
		text,
	)

	if chosen := selectPromptExemplars(res, sc, exemplars); len(chosen) > 0 {
		var b strings.Builder
		b.WriteString("\n\nRELEVANT EXAMPLES:\n")
		for i, e := range chosen {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s", e.Question, e.Answer)
		}
		prompt += b.String()
	}

	if auxiliary != "" {
		prompt += "\n\nREFERENCE SPL ELEMENTS (extracted from documentation, use when applicable):\n" + auxiliary
	}

	return prompt
}

// selectPromptExemplars picks the exemplars quoted in the prompt. The
// input is already ranked by similarity, so filtering preserves rank
// order. Scope-matching exemplars are preferred; if none match, the best
// overall exemplars are used.
func selectPromptExemplars(res resolver.Resolution, sc scope, exemplars []catalog.Exemplar) []catalog.Exemplar {
	var matched []catalog.Exemplar
	if sc.NeedsExtraction {
		for _, e := range exemplars {
			if strings.HasPrefix(e.Answer, "index=*") {
				matched = append(matched, e)
			}
		}
	} else {
		qPrefix := "for " + strings.ToLower(res.CompanyName)
		winIndex := "index=" + res.CompanyName + "_win"
		linuxIndex := "index=" + res.CompanyName + "_linux"
		for _, e := range exemplars {
			if strings.HasPrefix(strings.ToLower(e.Question), qPrefix) &&
				(strings.Contains(e.Answer, winIndex) || strings.Contains(e.Answer, linuxIndex)) {
				matched = append(matched, e)
			}
		}
	}
	if len(matched) == 0 {
		matched = exemplars
	}
	if len(matched) > promptExemplarCount {
		matched = matched[:promptExemplarCount]
	}
	return matched
}
