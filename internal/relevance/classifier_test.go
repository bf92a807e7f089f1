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

package relevance

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/spl-assistant/internal/llm"
	"go.uber.org/zap"
)

type fakeModel struct {
	resp string
	err  error
}

func (f *fakeModel) Complete(_ context.Context, _ []llm.Message, _ float32) (string, error) {
	return f.resp, f.err
}

type fakeEmbedder struct {
	queryVec   []float32
	anchorVec  []float32
	err        error
	batchCalls int
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queryVec, nil
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.anchorVec
	}
	return out, nil
}

func newTestClassifier(model *fakeModel, emb *fakeEmbedder) *Classifier {
	return NewClassifier(model, emb, zap.NewNop())
}

func TestKeywordStages(t *testing.T) {
	c := newTestClassifier(&fakeModel{err: errors.New("unavailable")}, &fakeEmbedder{err: errors.New("unavailable")})

	testCases := []struct {
		name       string
		query      string
		related    bool
		confidence float64
		method     string
	}{
		{
			name:       "literal SPL syntax",
			query:      "what does index=main sourcetype=syslog return",
			related:    true,
			confidence: 0.95,
			method:     MethodSyntax,
		},
		{
			name:       "pipe command",
			query:      "why is | stats count slow",
			related:    true,
			confidence: 0.95,
			method:     MethodSyntax,
		},
		{
			name:       "domain vocabulary",
			query:      "build me a splunk dashboard",
			related:    true,
			confidence: 0.88,
			method:     MethodDomain,
		},
		{
			name:       "security keywords",
			query:      "failed login attempts",
			related:    true,
			confidence: 0.80,
			method:     MethodSecurity,
		},
		{
			name:       "temporal phrase",
			query:      "what happened yesterday",
			related:    true,
			confidence: 0.75,
			method:     MethodTime,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := c.Classify(context.Background(), tc.query)
			if v.IsRelated != tc.related {
				t.Errorf("IsRelated = %v, want %v", v.IsRelated, tc.related)
			}
			if v.Confidence != tc.confidence {
				t.Errorf("Confidence = %v, want %v", v.Confidence, tc.confidence)
			}
			if v.Method != tc.method {
				t.Errorf("Method = %q, want %q", v.Method, tc.method)
			}
		})
	}
}

func TestKeywordStagesAreDeterministic(t *testing.T) {
	c := newTestClassifier(&fakeModel{err: errors.New("unavailable")}, &fakeEmbedder{err: errors.New("unavailable")})

	for i := 0; i < 5; i++ {
		v := c.Classify(context.Background(), "index=acme_win EventCode=4625")
		if v.Method != MethodSyntax || v.Confidence != 0.95 {
			t.Fatalf("run %d: got (%q, %v), want (syntax_match, 0.95)", i, v.Method, v.Confidence)
		}
	}
}

func TestCascadePriority(t *testing.T) {
	c := newTestClassifier(&fakeModel{}, &fakeEmbedder{})

	// Contains both syntax and domain signals; the earlier stage wins.
	v := c.Classify(context.Background(), "splunk search with index=main")
	if v.Method != MethodSyntax {
		t.Errorf("Method = %q, want %q", v.Method, MethodSyntax)
	}
}

func TestEmbeddingStageAcceptsSimilarIntent(t *testing.T) {
	emb := &fakeEmbedder{
		queryVec:  []float32{1, 0, 0},
		anchorVec: []float32{1, 0, 0},
	}
	c := newTestClassifier(&fakeModel{err: errors.New("should not be called")}, emb)

	v := c.Classify(context.Background(), "recommend a good novel to read")
	if !v.IsRelated {
		t.Fatal("expected embedding stage to accept identical vectors")
	}
	if v.Method != MethodEmbedding {
		t.Errorf("Method = %q, want %q", v.Method, MethodEmbedding)
	}
	if v.Confidence < 0.99 {
		t.Errorf("Confidence = %v, want ~1.0", v.Confidence)
	}
}

func TestEmbeddingStageBelowThresholdFallsThrough(t *testing.T) {
	emb := &fakeEmbedder{
		queryVec:  []float32{1, 0, 0},
		anchorVec: []float32{0, 1, 0},
	}
	model := &fakeModel{resp: `{"is_splunk_related": false, "confidence": 0.2, "reasoning": "cooking"}`}
	c := newTestClassifier(model, emb)

	v := c.Classify(context.Background(), "recommend a good novel to read")
	if v.IsRelated {
		t.Error("expected orthogonal vectors to fall through to the LLM stage")
	}
	if v.Method != MethodLLM {
		t.Errorf("Method = %q, want %q", v.Method, MethodLLM)
	}
}

func TestLLMStageParsesSingleQuotedJSON(t *testing.T) {
	model := &fakeModel{resp: `{'is_splunk_related': true, 'confidence': 0.9, 'reasoning': 'query intent'}`}
	c := newTestClassifier(model, &fakeEmbedder{err: errors.New("unavailable")})

	v := c.Classify(context.Background(), "recommend a good novel to read")
	if !v.IsRelated {
		t.Fatal("expected LLM verdict to be accepted")
	}
	if v.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", v.Confidence)
	}
	if v.Method != MethodLLM {
		t.Errorf("Method = %q, want %q", v.Method, MethodLLM)
	}
}

func TestAllStagesUnavailableDefaultsToNotRelated(t *testing.T) {
	c := newTestClassifier(&fakeModel{err: errors.New("unavailable")}, &fakeEmbedder{err: errors.New("unavailable")})

	v := c.Classify(context.Background(), "recommend a good novel to read")
	if v.IsRelated {
		t.Error("expected not related when every adapter is down")
	}
	if v.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", v.Confidence)
	}
	if v.Method != MethodLLM {
		t.Errorf("Method = %q, want %q", v.Method, MethodLLM)
	}
}

func TestAnchorCacheRetriesAfterFailure(t *testing.T) {
	emb := &fakeEmbedder{
		queryVec:  []float32{1, 0},
		anchorVec: []float32{1, 0},
		err:       errors.New("unavailable"),
	}
	c := newTestClassifier(&fakeModel{err: errors.New("unavailable")}, emb)

	// First call fails and must not poison the cache.
	v := c.Classify(context.Background(), "recommend a good novel to read")
	if v.IsRelated {
		t.Fatal("expected failure path to report not related")
	}

	emb.err = nil
	v = c.Classify(context.Background(), "recommend a good novel to read")
	if v.Method != MethodEmbedding {
		t.Fatalf("Method = %q, want %q after embedder recovery", v.Method, MethodEmbedding)
	}

	// Third call must reuse the cached anchors.
	calls := emb.batchCalls
	_ = c.Classify(context.Background(), "recommend a good novel to read")
	if emb.batchCalls != calls {
		t.Errorf("anchor embeddings recomputed: %d batch calls, want %d", emb.batchCalls, calls)
	}
}
