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

// Package vecmath provides the small amount of vector arithmetic the
// pipeline needs for embedding similarity ranking.
package vecmath

import "math"

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MaxCosine returns the index and value of the candidate most similar to
// query. An empty candidate set returns (-1, 0).
func MaxCosine(query []float32, candidates [][]float32) (int, float64) {
	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		score := Cosine(query, c)
		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best, bestScore
}
