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
	"regexp"
	"strings"
)

var (
	fencePattern = regexp.MustCompile("```(?:spl|splunk)?")
	pipeSpacing  = regexp.MustCompile(`\s*\|\s*`)
	equalSpacing = regexp.MustCompile(`\s*=\s*`)
	limitPattern = regexp.MustCompile(`(?i)\|\s*limit\s+(\d+)`)
)

// prosePrefixes identify explanatory lines the model sometimes adds around
// the query.
var prosePrefixes = []string{
	"This query", "The above", "Note:", "Explanation:", "This SPL", "Generated", "**",
}

// Clean normalizes raw model output into a bare SPL query. It is a
// deterministic line rewrite: strip code fences, normalize pipe and
// assignment spacing per line, drop prose lines, re-join with
// pipe-continuation lines on their own lines, and rewrite the deprecated
// "limit" command to "head". Clean is idempotent: cleaning already-clean
// output returns it unchanged.
func Clean(raw string) string {
	text := fencePattern.ReplaceAllString(raw, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = pipeSpacing.ReplaceAllString(line, " | ")
		line = equalSpacing.ReplaceAllString(line, "=")
		line = strings.TrimSpace(line)

		if line == "" || isProse(line) {
			continue
		}
		kept = append(kept, line)
	}

	var b strings.Builder
	for i, line := range kept {
		switch {
		case i == 0:
			b.WriteString(line)
		case strings.HasPrefix(line, "|"):
			b.WriteString("\n")
			b.WriteString(line)
		default:
			b.WriteString(" ")
			b.WriteString(line)
		}
	}

	result := strings.TrimSpace(b.String())
	result = limitPattern.ReplaceAllString(result, "| head $1")
	return result
}

// isProse reports whether a line is explanatory text rather than query
// structure.
func isProse(line string) bool {
	for _, prefix := range prosePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
