package hnsw

import (
	"fmt"

	"github.com/patrikhermansson/smallworld/core"
)

// Search returns the k nearest neighbors of a query vector using the index's
// default beam width (widened to k when k exceeds it).
func (h *Index) Search(query []float32, k int) ([]core.Neighbor, error) {
	ef := h.opts.EFSearch
	if ef < k {
		ef = k
	}
	return h.SearchWithEF(query, k, ef)
}

// SearchWithEF returns up to k neighbors ordered by ascending distance,
// exploring ef candidates at level 0. ef must be at least k: a beam narrower
// than the requested result count would silently truncate results, so it is
// rejected instead.
//
// For a fixed graph and fixed ef the results are deterministic.
func (h *Index) SearchWithEF(query []float32, k, ef int) ([]core.Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d must be positive", core.ErrInvalidParameter, k)
	}
	if ef < k {
		return nil, fmt.Errorf("%w: ef=%d must be >= k=%d", core.ErrInvalidParameter, ef, k)
	}
	if len(query) != h.store.Dim() {
		return nil, &core.DimensionMismatchError{Expected: h.store.Dim(), Actual: len(query)}
	}

	h.mu.RLock()
	maxLevel := h.maxLevel
	currID := h.entryPoint
	h.mu.RUnlock()
	if maxLevel < 0 {
		return nil, core.ErrEmptyIndex
	}

	if h.store.Metric() == core.Angular {
		queryCopy := make([]float32, len(query))
		copy(queryCopy, query)
		core.NormalizeVector(queryCopy)
		query = queryCopy
	}

	currDist, err := h.store.DistanceToQuery(int(currID), query)
	if err != nil {
		return nil, err
	}

	// Greedy descent from the top level to level 1.
	for level := maxLevel; level > 0; level-- {
		currID, currDist = h.greedyStep(query, currID, currDist, level)
	}

	visited := h.visitedPool.Get().(*visitedSet)
	candidates := h.searchLayer(query, currID, currDist, 0, ef, visited, noSkip)
	visited.reset()
	h.visitedPool.Put(visited)

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]core.Neighbor, k)
	for i := 0; i < k; i++ {
		results[i] = core.Neighbor{ID: int(candidates[i].id), Distance: candidates[i].dist}
	}
	return results, nil
}
