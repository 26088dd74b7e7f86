package embeddings

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine similarity of a and b. It is defined as
// 0.0 when either vector has zero norm or the lengths differ, and never
// fails.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Match pairs a candidate index with its similarity score.
type Match struct {
	Index int
	Score float64
}

// FindMostSimilar scores every candidate against query and returns the topK
// best matches in descending score order. The sort is stable: candidates
// with equal scores keep their input order.
func FindMostSimilar(query []float32, candidates [][]float32, topK int) []Match {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}

	matches := make([]Match, len(candidates))
	for i, candidate := range candidates {
		matches[i] = Match{Index: i, Score: CosineSimilarity(query, candidate)}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}
