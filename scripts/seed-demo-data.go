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

// Seeds ./data with a small demo catalog so the service can be run
// locally without real customer data: two tenants, a handful of Q/A
// exemplars, and a short documentation corpus.
//
// Usage: go run scripts/seed-demo-data.go [target-dir]
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/your-org/spl-assistant/internal/catalog"
)

func main() {
	targetDir := "./data"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	if err := os.MkdirAll(targetDir, 0750); err != nil {
		log.Fatalf("Failed to create target directory: %v", err)
	}

	tenants := []catalog.TenantProfile{
		{
			CompanyName: "Acme",
			ProductName: "Windows Security Monitoring",
			Index:       "Acme_win",
			Sourcetype:  "WinEventLog",
			Domain:      "Security",
			UseCases:    "Authentication monitoring, Defender status, privilege escalation",
			DataModels:  []string{"Authentication", "Endpoint"},
		},
		{
			CompanyName: "Acme",
			ProductName: "Linux Server Monitoring",
			Index:       "Acme_linux",
			Sourcetype:  "linux_secure",
			Domain:      "Security",
			UseCases:    "SSH auditing, sudo usage, service failures",
			DataModels:  []string{"Authentication"},
		},
		{
			CompanyName: "Globex",
			ProductName: "Web Analytics",
			Index:       "Globex_win",
			Sourcetype:  "WinEventLog",
			Domain:      "E-commerce",
			UseCases:    "Checkout funnel errors, store performance",
		},
	}

	exemplars := []catalog.Exemplar{
		{
			Question: "For Acme show failed login attempts in the last day",
			Answer: "index=Acme_win sourcetype=WinEventLog earliest=-24h EventCode=4625" +
				"\n| stats count by Account_Name, Source_Network_Address" +
				"\n| sort - count" +
				"\n| head 10",
		},
		{
			Question: "Which Acme Linux servers had sudo failures this week?",
			Answer: "index=Acme_linux sourcetype=linux_secure earliest=-7d \"sudo\" \"authentication failure\"" +
				"\n| stats count by host, user" +
				"\n| sort - count",
		},
		{
			Question: "Compare failed logins across all companies",
			Answer: "index=* (sourcetype=WinEventLog OR sourcetype=linux_secure) earliest=-24h (EventCode=4625 OR \"authentication failure\")" +
				"\n| rex field=index \"(?<company>\\w+)_\"" +
				"\n| stats count by company" +
				"\n| sort - count",
		},
	}

	corpus := `The stats command calculates aggregate statistics over the results, such as count, sum, and avg. Use "stats count by field" to group events.

The eval command creates or overwrites fields using expressions. coalesce(a, b) returns the first non-null argument.

EventCode 4625 records a failed Windows logon attempt. The Account_Name and Source_Network_Address fields identify the target account and origin.

The rex command extracts fields with a regular expression. Named capture groups become fields: rex field=index "(?<company>\w+)_".

Use earliest and latest to bound the search time range, for example earliest=-24h for the last day or earliest=-7d@d for the last week aligned to day boundaries.

The head command returns the first N results and replaces the unsupported limit syntax.`

	writeJSON(filepath.Join(targetDir, "index-sourcetype.json"), tenants)
	writeJSON(filepath.Join(targetDir, "qa_pairs.json"), exemplars)
	if err := os.WriteFile(filepath.Join(targetDir, "splunk_docs.txt"), []byte(corpus), 0644); err != nil {
		log.Fatalf("Failed to write documentation corpus: %v", err)
	}

	log.Printf("Seeded demo catalog into %s: %d tenants, %d exemplars", targetDir, len(tenants), len(exemplars))
}

func writeJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}
