package retriever

import (
	"math"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/vectorstore"
)

// MMR selects up to k candidate indexes. The first pick is the candidate
// most similar to the query; each later pick maximises
//
//	lambda*sim(query, c) - (1-lambda)*max(sim(c, s) for s in selected)
//
// Ties go to the earlier candidate.
func MMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = float64(vectorstore.Cosine(query, c))
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// redundancy[i] is the max similarity of candidate i to any selected one
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		selected = append(selected, best)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			if s := float64(vectorstore.Cosine(candidates[best], c)); s > redundancy[i] {
				redundancy[i] = s
			}
		}
	}
	return selected
}
