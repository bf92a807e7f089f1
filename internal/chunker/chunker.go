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

// Package chunker splits the SPL documentation corpus into fixed-size
// overlapping windows for embedding and retrieval. Chunk size and overlap
// are configuration, not logic.
package chunker

import "strings"

// Split cuts text into windows of at most chunkSize characters with the
// given overlap between consecutive windows. Where possible a window ends
// on a paragraph, line, sentence or word boundary, tried in that order.
func Split(text string, chunkSize, overlap int) []string {
	if text == "" {
		return []string{}
	}
	if chunkSize <= 0 || len(text) <= chunkSize {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		cut := findBreak(text[start:end])
		if cut <= 0 {
			cut = chunkSize
		}
		chunks = append(chunks, strings.TrimSpace(text[start:start+cut]))

		next := start + cut - overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	// Drop windows that trimmed down to nothing.
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// findBreak returns the cut position after the last separator in window,
// preferring paragraph breaks over line breaks over sentence ends over
// spaces.
func findBreak(window string) int {
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return idx + len(sep)
		}
	}
	return -1
}
