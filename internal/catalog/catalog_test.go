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

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index-sourcetype.json", `[
		{"company_name": "Acme", "product_name": "Windows Security", "index": "Acme_win", "sourcetype": "WinEventLog", "domain": "Security", "use_cases": "Authentication monitoring", "data_model": ["Authentication"]},
		{"company_name": "Globex", "product_name": "Web Analytics", "index": "Globex_win", "sourcetype": "WinEventLog", "domain": "E-commerce", "use_cases": "Checkout monitoring"}
	]`)
	writeFile(t, dir, "qa_pairs.json", `[
		{"question": "For Acme show failed logins", "answer": "index=Acme_win EventCode=4625"},
		{"question": "", "answer": "index=Acme_win orphan"},
		{"question": "no answer", "answer": "  "}
	]`)

	loader := NewLoader([]string{dir}, "index-sourcetype.json", "qa_pairs.json", zap.NewNop())
	cat, err := loader.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cat.Tenants) != 2 {
		t.Fatalf("got %d tenants, want 2", len(cat.Tenants))
	}
	if cat.Tenants[0].CompanyName != "Acme" || cat.Tenants[0].Index != "Acme_win" {
		t.Errorf("unexpected first tenant: %+v", cat.Tenants[0])
	}
	if len(cat.Exemplars) != 1 {
		t.Fatalf("got %d exemplars, want 1 (invalid entries dropped)", len(cat.Exemplars))
	}
}

func TestLoadMissingFilesFallsBack(t *testing.T) {
	loader := NewLoader([]string{t.TempDir()}, "index-sourcetype.json", "qa_pairs.json", zap.NewNop())
	cat, err := loader.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cat.Tenants) != 1 {
		t.Fatalf("got %d tenants, want the synthetic default", len(cat.Tenants))
	}
	def := cat.Tenants[0]
	if def.CompanyName != "Default" || def.Index != "main" || def.Sourcetype != "*" {
		t.Errorf("unexpected default tenant: %+v", def)
	}
	if len(cat.Exemplars) != 0 {
		t.Errorf("got %d exemplars, want 0", len(cat.Exemplars))
	}
}

func TestLoadTriesDirectoriesInOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, second, "index-sourcetype.json", `[{"company_name": "Acme", "index": "Acme_win"}]`)

	loader := NewLoader([]string{first, second}, "index-sourcetype.json", "qa_pairs.json", zap.NewNop())
	cat, err := loader.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cat.Tenants) != 1 || cat.Tenants[0].CompanyName != "Acme" {
		t.Errorf("tenant file in the second directory was not used: %+v", cat.Tenants)
	}
}

func TestDescription(t *testing.T) {
	tenant := TenantProfile{
		CompanyName: "Acme",
		ProductName: "Windows Security",
		Domain:      "Security",
		UseCases:    "Authentication monitoring",
		Index:       "Acme_win",
		Sourcetype:  "WinEventLog",
	}

	want := "Acme Windows Security Security Authentication monitoring Acme_win WinEventLog"
	if got := tenant.Description(); got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}
}

func TestNamesAndDescriptions(t *testing.T) {
	cat := &Catalog{Tenants: []TenantProfile{
		{CompanyName: "Acme"},
		{CompanyName: "Globex"},
	}}

	names := cat.Names()
	if len(names) != 2 || names[0] != "Acme" || names[1] != "Globex" {
		t.Errorf("unexpected names: %v", names)
	}
	if len(cat.Descriptions()) != 2 {
		t.Errorf("unexpected description count: %d", len(cat.Descriptions()))
	}
}
