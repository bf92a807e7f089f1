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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/resolver"
	"go.uber.org/zap"
)

type fakeModel struct {
	resp   string
	err    error
	prompt string
}

func (f *fakeModel) Complete(_ context.Context, messages []llm.Message, _ float32) (string, error) {
	if len(messages) > 0 {
		f.prompt = messages[len(messages)-1].Content
	}
	return f.resp, f.err
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Tenants: []catalog.TenantProfile{
			{CompanyName: "Acme", ProductName: "Windows Security", Index: "Acme_win", Sourcetype: "WinEventLog"},
			{CompanyName: "Acme", ProductName: "Linux Server", Index: "Acme_linux", Sourcetype: "linux_secure"},
		},
	}
}

func acmeResolution() resolver.Resolution {
	return resolver.Resolution{
		CompanyName: "Acme",
		ProductName: "Windows Security",
		Index:       "Acme_win",
		Sourcetype:  "WinEventLog",
		Confidence:  0.96,
		Method:      resolver.MethodDirectMatch,
	}
}

func crossResolution() resolver.Resolution {
	return resolver.Resolution{
		CompanyName:   "All Companies",
		ProductName:   "Cross-Company Analysis",
		Index:         "*",
		Confidence:    0.9,
		Method:        resolver.MethodLLMCrossTenant,
		TenantOrdinal: resolver.CrossTenantOrdinal,
		IsCrossTenant: true,
	}
}

func TestClean(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips code fences",
			in:   "```spl\nindex=main error\n| stats count\n```",
			want: "index=main error\n| stats count",
		},
		{
			name: "normalizes pipe and assignment spacing",
			in:   "index = main error |stats count by host",
			want: "index=main error | stats count by host",
		},
		{
			name: "drops prose lines",
			in:   "This query finds errors.\nindex=main error\nNote: adjust the window.\n| head 5",
			want: "index=main error\n| head 5",
		},
		{
			name: "rewrites limit to head",
			in:   "index=main error\n| limit 10",
			want: "index=main error\n| head 10",
		},
		{
			name: "joins continuation lines",
			in:   "index=main\nerror OR warn\n| stats count",
			want: "index=main error OR warn\n| stats count",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Clean(tc.in))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"```spl\nindex = main | limit 3\nThis query counts events.\n```",
		"index=Acme_win sourcetype=WinEventLog earliest=-24h\n| stats count by user\n| sort - count\n| head 10",
		"index=* (sourcetype=WinEventLog OR sourcetype=syslog)\n| rex field=index \"(?<company>\\w+)_\"",
	}

	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		assert.Equal(t, once, twice, "Clean must be idempotent for %q", in)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		query  string
		issues []string
	}{
		{
			name:  "well formed query",
			query: "index=main error\n| stats count by host",
		},
		{
			name:   "missing index",
			query:  "error AND warn",
			issues: []string{"Query should specify an index (e.g., index=main)"},
		},
		{
			name:   "missing pipe on continuation line",
			query:  "index=main error\nstats count",
			issues: []string{"Line 2: missing pipe |"},
		},
		{
			name:   "spaced assignment",
			query:  "index=main\n| eval user = lower(user)",
			issues: []string{"Use = without spaces for field assignments"},
		},
		{
			name:  "comment lines are allowed",
			query: "index=main error\n# pre-filtered\n| stats count",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.query)
			assert.Equal(t, tc.issues, got)
		})
	}
}

func TestResolveScope(t *testing.T) {
	cat := testCatalog()

	testCases := []struct {
		name       string
		res        resolver.Resolution
		wantIndex  string
		wantClause string
		wantExtr   bool
	}{
		{
			name:       "single tenant with suffixed index",
			res:        acmeResolution(),
			wantIndex:  "Acme_win",
			wantClause: "sourcetype=WinEventLog",
		},
		{
			name: "unsuffixed index corrected from catalog",
			res: resolver.Resolution{
				CompanyName: "Acme", Index: "acme", Sourcetype: "syslog",
			},
			wantIndex:  "Acme_win",
			wantClause: "sourcetype=WinEventLog",
		},
		{
			name: "unknown tenant defaults to windows form",
			res: resolver.Resolution{
				CompanyName: "Initech", Index: "initech", Sourcetype: "syslog",
			},
			wantIndex:  "Initech_win",
			wantClause: "sourcetype=WinEventLog",
		},
		{
			name:       "cross tenant maps to wildcard scope",
			res:        crossResolution(),
			wantIndex:  "*",
			wantClause: crossSourcetypeClause,
			wantExtr:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sc := resolveScope(tc.res, cat)
			assert.Equal(t, tc.wantIndex, sc.Index)
			assert.Equal(t, tc.wantClause, sc.SourcetypeClause)
			assert.Equal(t, tc.wantExtr, sc.NeedsExtraction)
		})
	}
}

func TestRepairScopePreservesEarliest(t *testing.T) {
	sc := scope{Index: "Acme_win", SourcetypeClause: "sourcetype=WinEventLog"}

	repaired := repairScope("index=wrong earliest=-7d@d EventCode=4625\n| stats count", sc)

	lines := strings.Split(repaired, "\n")
	assert.Equal(t, "index=Acme_win sourcetype=WinEventLog earliest=-7d@d EventCode=4625", lines[0])
	assert.Equal(t, "| stats count", lines[1])
}

func TestRepairScopeDefaultsTimeWindow(t *testing.T) {
	sc := scope{Index: "Acme_win", SourcetypeClause: "sourcetype=WinEventLog"}

	repaired := repairScope("sourcetype=other EventCode=4625", sc)
	assert.Equal(t, "index=Acme_win sourcetype=WinEventLog earliest=-24h EventCode=4625", repaired)
}

func TestRepairScopeLeavesCorrectQueryAlone(t *testing.T) {
	sc := scope{Index: "Acme_win", SourcetypeClause: "sourcetype=WinEventLog"}
	query := "index=Acme_win sourcetype=WinEventLog earliest=-24h\n| stats count"

	assert.Equal(t, query, repairScope(query, sc))
}

func TestRepairScopeSkipsWildcard(t *testing.T) {
	sc := scope{Index: "*", SourcetypeClause: crossSourcetypeClause, NeedsExtraction: true}
	query := "index=whatever the model produced"

	assert.Equal(t, query, repairScope(query, sc))
}

func TestSynthesizeCleansAndRepairs(t *testing.T) {
	model := &fakeModel{resp: "```spl\nindex = wrong EventCode=4625\n| stats count by user\n| limit 10\n```"}
	s := NewSynthesizer(model, testCatalog(), 0, zap.NewNop())

	result := s.Synthesize(context.Background(), "failed logins for Acme", acmeResolution(), nil, "")

	require.False(t, result.Fallback)
	lines := strings.Split(result.Query, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "index=Acme_win sourcetype=WinEventLog"))
	assert.Contains(t, result.Query, "| head 10")
	assert.NotContains(t, result.Query, "limit")
	assert.Empty(t, result.Issues)
}

func TestSynthesizeFallbackFailedLogins(t *testing.T) {
	model := &fakeModel{err: errors.New("model unavailable")}
	s := NewSynthesizer(model, testCatalog(), 0, zap.NewNop())

	result := s.Synthesize(context.Background(), "show failed login attempts", acmeResolution(), nil, "")

	require.True(t, result.Fallback)
	assert.True(t, strings.HasPrefix(result.Query, "index=Acme_win sourcetype=WinEventLog"))
	assert.Contains(t, result.Query, "EventCode=4625")
	assert.Contains(t, result.Query, "| head 10")
	assert.Empty(t, result.Issues)
}

func TestSynthesizeFallbackDefenderDisable(t *testing.T) {
	model := &fakeModel{err: errors.New("model unavailable")}
	s := NewSynthesizer(model, testCatalog(), 0, zap.NewNop())

	result := s.Synthesize(context.Background(), "when was defender disabled", acmeResolution(), nil, "")

	require.True(t, result.Fallback)
	assert.Contains(t, result.Query, "EventCode=5001")
	assert.Contains(t, result.Query, "EventCode=5025")
}

func TestSynthesizeFallbackCrossTenant(t *testing.T) {
	model := &fakeModel{err: errors.New("model unavailable")}
	s := NewSynthesizer(model, testCatalog(), 0, zap.NewNop())

	result := s.Synthesize(context.Background(), "count events", crossResolution(), nil, "")

	require.True(t, result.Fallback)
	assert.True(t, strings.HasPrefix(result.Query, "index=* "))
	assert.Contains(t, result.Query, `| rex field=index "(?<company>\w+)_"`)
	assert.Contains(t, result.Query, "| stats count")
}

func TestBuildPromptIncludesExemplarsAndAuxiliary(t *testing.T) {
	exemplars := []catalog.Exemplar{
		{Question: "For Acme show failed logins", Answer: "index=Acme_win EventCode=4625"},
		{Question: "For Acme show sudo usage", Answer: "index=Acme_linux sudo"},
	}

	sc := resolveScope(acmeResolution(), testCatalog())
	prompt := buildPrompt("failed logins", acmeResolution(), sc, exemplars, "Indexes & Sourcetypes: Acme_win")

	assert.Contains(t, prompt, "RELEVANT EXAMPLES:")
	assert.Contains(t, prompt, "Q: For Acme show failed logins")
	assert.Contains(t, prompt, "REFERENCE SPL ELEMENTS")
	assert.Contains(t, prompt, "index=Acme_win sourcetype=WinEventLog")
}

func TestSelectPromptExemplarsPrefersScopeMatches(t *testing.T) {
	exemplars := []catalog.Exemplar{
		{Question: "generic question", Answer: "index=Globex_win something"},
		{Question: "cross question", Answer: "index=* everything"},
	}

	sc := scope{Index: "*", SourcetypeClause: crossSourcetypeClause, NeedsExtraction: true}
	chosen := selectPromptExemplars(crossResolution(), sc, exemplars)

	require.Len(t, chosen, 1)
	assert.Equal(t, "cross question", chosen[0].Question)
}

func TestSelectPromptExemplarsFallsBackToRankOrder(t *testing.T) {
	exemplars := []catalog.Exemplar{
		{Question: "first", Answer: "index=Other_win a"},
		{Question: "second", Answer: "index=Other_win b"},
		{Question: "third", Answer: "index=Other_win c"},
	}

	sc := resolveScope(acmeResolution(), testCatalog())
	chosen := selectPromptExemplars(acmeResolution(), sc, exemplars)

	require.Len(t, chosen, promptExemplarCount)
	assert.Equal(t, "first", chosen[0].Question)
	assert.Equal(t, "second", chosen[1].Question)
}
