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

// Package catalog loads the reference catalog: the company (tenant)
// profiles mapping each organization to its Splunk index and sourcetype,
// and the question/answer exemplars used as few-shot references during
// generation. The catalog is loaded once at startup and read-only after.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// TenantProfile describes one company's data scope.
type TenantProfile struct {
	CompanyName string   `json:"company_name"`
	ProductName string   `json:"product_name"`
	Index       string   `json:"index"`
	Sourcetype  string   `json:"sourcetype"`
	Domain      string   `json:"domain"`
	UseCases    string   `json:"use_cases"`
	DataModels  []string `json:"data_model"`
}

// Exemplar is a stored question/answer pair.
type Exemplar struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Catalog holds the loaded tenant profiles and exemplars. It is immutable
// after Load and safe for concurrent reads.
type Catalog struct {
	Tenants   []TenantProfile
	Exemplars []Exemplar
}

// DefaultTenant is the synthetic profile substituted when the tenant file
// cannot be found, so the resolver never operates on an empty set.
func DefaultTenant() TenantProfile {
	return TenantProfile{
		CompanyName: "Default",
		ProductName: "System",
		Index:       "main",
		Sourcetype:  "*",
		Domain:      "General",
		UseCases:    "Log analysis",
		DataModels:  []string{},
	}
}

// Loader reads catalog files from a list of base directories, trying each
// in order.
type Loader struct {
	baseDirs      []string
	tenantsFile   string
	exemplarsFile string
	logger        *zap.Logger
}

// NewLoader creates a catalog loader. tenantsFile and exemplarsFile are
// file names resolved against each base directory in order.
func NewLoader(baseDirs []string, tenantsFile, exemplarsFile string, logger *zap.Logger) *Loader {
	return &Loader{
		baseDirs:      baseDirs,
		tenantsFile:   tenantsFile,
		exemplarsFile: exemplarsFile,
		logger:        logger,
	}
}

// Load reads the tenant and exemplar files. Absence of either file is
// non-fatal: tenants fall back to the synthetic default profile and
// exemplars to an empty list.
func (l *Loader) Load() (*Catalog, error) {
	cat := &Catalog{}

	var tenants []TenantProfile
	if path, err := l.readJSON(l.tenantsFile, &tenants); err != nil {
		l.logger.Warn("Tenant catalog not found, using synthetic default",
			zap.String("file", l.tenantsFile),
			zap.Error(err),
		)
		cat.Tenants = []TenantProfile{DefaultTenant()}
	} else {
		l.logger.Info("Tenant catalog loaded",
			zap.String("path", path),
			zap.Int("tenant_count", len(tenants)),
		)
		cat.Tenants = tenants
	}
	if len(cat.Tenants) == 0 {
		cat.Tenants = []TenantProfile{DefaultTenant()}
	}

	var exemplars []Exemplar
	if path, err := l.readJSON(l.exemplarsFile, &exemplars); err != nil {
		l.logger.Warn("Exemplar file not found, using empty list",
			zap.String("file", l.exemplarsFile),
			zap.Error(err),
		)
	} else {
		l.logger.Info("Exemplars loaded",
			zap.String("path", path),
			zap.Int("exemplar_count", len(exemplars)),
		)
	}
	cat.Exemplars = validExemplars(exemplars)

	return cat, nil
}

// readJSON finds the first base directory containing name and decodes it.
func (l *Loader) readJSON(name string, out interface{}) (string, error) {
	var lastErr error
	for _, base := range l.baseDirs {
		path := filepath.Join(base, name)
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", fmt.Errorf("%s not found in any base directory: %w", name, lastErr)
}

// validExemplars drops entries missing a question or answer.
func validExemplars(exemplars []Exemplar) []Exemplar {
	valid := make([]Exemplar, 0, len(exemplars))
	for _, e := range exemplars {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

// Description flattens a tenant profile into the text used for embedding
// similarity and catalog prompts.
func (t TenantProfile) Description() string {
	return fmt.Sprintf("%s %s %s %s %s %s",
		t.CompanyName, t.ProductName, t.Domain, t.UseCases, t.Index, t.Sourcetype)
}

// Descriptions returns the flattened description of every tenant.
func (c *Catalog) Descriptions() []string {
	descs := make([]string, len(c.Tenants))
	for i, t := range c.Tenants {
		descs[i] = t.Description()
	}
	return descs
}

// Names returns every tenant's company name.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Tenants))
	for i, t := range c.Tenants {
		names[i] = t.CompanyName
	}
	return names
}
