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
)

// Validate flags structural problems in an SPL query. It always runs;
// non-empty issues do not block returning a successful result.
func Validate(query string) []string {
	var issues []string

	lines := strings.Split(query, "\n")
	firstLine := ""
	if len(lines) > 0 {
		firstLine = lines[0]
	}

	if !strings.Contains(query, "index=") && !strings.Contains(firstLine, "| ") {
		issues = append(issues, "Query should specify an index (e.g., index=main)")
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i == 0 || trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "|") && !strings.HasPrefix(trimmed, "#") {
			issues = append(issues, fmt.Sprintf("Line %d: missing pipe |", i+1))
		}
	}

	if strings.Contains(query, " = ") {
		issues = append(issues, "Use = without spaces for field assignments")
	}

	return issues
}
