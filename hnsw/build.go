package hnsw

import (
	"container/heap"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Add inserts a single vector and returns its assigned id.
// Safe for concurrent use with other Add calls and with searches.
func (h *Index) Add(vector []float32) (int, error) {
	n, err := h.allocate(vector)
	if err != nil {
		return 0, err
	}
	if n == nil {
		// First node: published as entry point, nothing to link.
		return 0, nil
	}
	h.link(n)
	return int(n.id), nil
}

// BulkAdd inserts a batch of vectors, parallelizing graph linking across
// NumWorkers goroutines, and returns the id of the first inserted vector.
// Ids are assigned contiguously in slice order; level draws happen before
// any parallel work, so the level structure depends only on the seed.
func (h *Index) BulkAdd(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	pending := make([]*node, 0, len(vectors))
	firstID := -1
	for _, vec := range vectors {
		n, err := h.allocate(vec)
		if err != nil {
			return 0, err
		}
		if firstID < 0 {
			if n != nil {
				firstID = int(n.id)
			} else {
				firstID = 0
			}
		}
		if n != nil {
			pending = append(pending, n)
		}
	}

	var g errgroup.Group
	g.SetLimit(h.opts.NumWorkers)
	for _, n := range pending {
		n := n
		g.Go(func() error {
			h.link(n)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().Msgf("Bulk-added %d vectors (%d workers)", len(vectors), h.opts.NumWorkers)
	return firstID, nil
}

// allocate appends the vector to the store and registers an unlinked node
// for it. It returns nil when the node became the graph's first entry point
// and needs no linking.
func (h *Index) allocate(vector []float32) (*node, error) {
	level := h.randomLevel()

	h.mu.Lock()
	id, err := h.store.Append(vector)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	n := newNode(uint32(id), level)
	h.nodes = append(h.nodes, n)
	if h.maxLevel < 0 {
		h.entryPoint = n.id
		h.maxLevel = n.level
		h.mu.Unlock()
		return nil, nil
	}
	h.mu.Unlock()
	return n, nil
}

// link wires an allocated node into the graph per the layered insertion
// algorithm: greedy descent above the node's level, beam search plus
// diversity-aware neighbor selection at each level at and below it, and
// bidirectional linking with degree-cap pruning.
func (h *Index) link(n *node) {
	vec := h.store.MustGet(int(n.id))

	h.mu.RLock()
	currID := h.entryPoint
	maxLevel := h.maxLevel
	h.mu.RUnlock()

	currDist, _ := h.store.DistanceToQuery(int(currID), vec)

	// Single-neighbor greedy walk through the levels above the node's level.
	for level := maxLevel; level > n.level; level-- {
		currID, currDist = h.greedyStep(vec, currID, currDist, level)
	}

	visited := h.visitedPool.Get().(*visitedSet)
	defer func() {
		visited.reset()
		h.visitedPool.Put(visited)
	}()

	for level := min(n.level, maxLevel); level >= 0; level-- {
		candidates := h.searchLayer(vec, currID, currDist, level, h.opts.EFConstruction, visited, n.id)
		visited.reset()
		if len(candidates) == 0 {
			continue
		}

		selected := h.selectNeighbors(vec, candidates, h.maxDegree(level))

		// Concurrent inserters may already have back-linked into this node;
		// installing selected verbatim would drop those edges.
		n.mu.Lock()
		n.links[level] = h.mergeLinks(vec, n.links[level], selected, h.maxDegree(level))
		n.mu.Unlock()

		for _, nbID := range selected {
			h.linkBack(nbID, n.id, level)
		}

		// The closest candidate seeds the search one level down.
		currID, currDist = candidates[0].id, candidates[0].dist
	}

	if n.level > maxLevel {
		h.mu.Lock()
		if n.level > h.maxLevel {
			h.entryPoint = n.id
			h.maxLevel = n.level
		}
		h.mu.Unlock()
	}
}

// greedyStep walks from curr to the locally closest neighbor at a level.
func (h *Index) greedyStep(query []float32, currID uint32, currDist float64, level int) (uint32, float64) {
	for {
		h.mu.RLock()
		curr := h.nodes[currID]
		h.mu.RUnlock()

		changed := false
		if level <= curr.level {
			for _, nbID := range curr.neighbors(level) {
				d, err := h.store.DistanceToQuery(int(nbID), query)
				if err != nil {
					continue
				}
				if d < currDist {
					currID, currDist = nbID, d
					changed = true
				}
			}
		}
		if !changed {
			return currID, currDist
		}
	}
}

// searchLayer performs a bounded best-first search at a level and returns up
// to ef candidates ordered by ascending distance. skip is excluded from the
// results (the node being inserted); pass noSkip for queries.
func (h *Index) searchLayer(query []float32, entryID uint32, entryDist float64, level, ef int, visited *visitedSet, skip uint32) []candidate {
	visited.visit(entryID)

	candQueue := candidateMinHeap{{entryID, entryDist}}
	var resultQueue candidateMaxHeap
	if entryID != skip {
		resultQueue = append(resultQueue, candidate{entryID, entryDist})
	}

	for candQueue.Len() > 0 {
		curr := candQueue[0]
		if len(resultQueue) >= ef && curr.dist > resultQueue[0].dist {
			break
		}
		heap.Pop(&candQueue)

		h.mu.RLock()
		currNode := h.nodes[curr.id]
		h.mu.RUnlock()
		if level > currNode.level {
			continue
		}

		for _, nbID := range currNode.neighbors(level) {
			if visited.visit(nbID) {
				continue
			}
			d, err := h.store.DistanceToQuery(int(nbID), query)
			if err != nil {
				continue
			}
			if len(resultQueue) < ef || d < resultQueue[0].dist {
				heap.Push(&candQueue, candidate{nbID, d})
				if nbID != skip {
					heap.Push(&resultQueue, candidate{nbID, d})
					if len(resultQueue) > ef {
						heap.Pop(&resultQueue)
					}
				}
			}
		}
	}

	results := make([]candidate, len(resultQueue))
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(&resultQueue).(candidate)
	}
	return results
}

// selectNeighbors applies the diversity heuristic to candidates ordered by
// ascending distance to the target vector: a candidate is kept only if it is
// closer to the target than to every already-kept neighbor. If fewer than m
// survive, the closest rejected candidates fill the remaining slots.
func (h *Index) selectNeighbors(target []float32, candidates []candidate, m int) []uint32 {
	selected := make([]uint32, 0, m)
	if len(candidates) <= m {
		for _, c := range candidates {
			selected = append(selected, c.id)
		}
		return selected
	}

	var rejected []candidate
	for _, c := range candidates {
		if len(selected) == m {
			break
		}
		cVec := h.store.MustGet(int(c.id))
		keep := true
		for _, s := range selected {
			if h.store.DistanceFunc()(cVec, h.store.MustGet(int(s))) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c.id)
		} else {
			rejected = append(rejected, c)
		}
	}

	for _, c := range rejected {
		if len(selected) == m {
			break
		}
		selected = append(selected, c.id)
	}
	return selected
}

// mergeLinks combines a freshly selected neighbor list with links already
// present on the node, deduplicated, pruning back down with the diversity
// heuristic when the union exceeds the level's degree cap. Must be called
// with the node's lock held; the result is a fresh slice.
func (h *Index) mergeLinks(target []float32, existing, selected []uint32, maxDegree int) []uint32 {
	if len(existing) == 0 {
		return selected
	}

	merged := selected
	for _, id := range existing {
		dup := false
		for _, s := range merged {
			if s == id {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, id)
		}
	}
	if len(merged) <= maxDegree {
		return merged
	}

	candidates := make([]candidate, 0, len(merged))
	for _, id := range merged {
		d, err := h.store.DistanceToQuery(int(id), target)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id, d})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist == candidates[j].dist {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].dist < candidates[j].dist
	})
	return h.selectNeighbors(target, candidates, maxDegree)
}

// linkBack adds src to nb's neighbor list at a level, pruning the list back
// down with the diversity heuristic when it exceeds the level's degree cap.
// The list is replaced wholesale, never mutated in place.
func (h *Index) linkBack(nbID, src uint32, level int) {
	h.mu.RLock()
	nb := h.nodes[nbID]
	h.mu.RUnlock()

	maxDegree := h.maxDegree(level)
	nbVec := h.store.MustGet(int(nbID))

	nb.mu.Lock()
	defer nb.mu.Unlock()

	links := nb.links[level]
	for _, existing := range links {
		if existing == src {
			return
		}
	}

	if len(links) < maxDegree {
		next := make([]uint32, len(links), len(links)+1)
		copy(next, links)
		nb.links[level] = append(next, src)
		return
	}

	// Over cap: re-select from the existing neighbors plus the new link.
	candidates := make([]candidate, 0, len(links)+1)
	for _, id := range links {
		d, err := h.store.Distance(int(nbID), int(id))
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id, d})
	}
	d, err := h.store.Distance(int(nbID), int(src))
	if err != nil {
		return
	}
	candidates = append(candidates, candidate{src, d})
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist == candidates[j].dist {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].dist < candidates[j].dist
	})

	nb.links[level] = h.selectNeighbors(nbVec, candidates, maxDegree)
}

// noSkip is a sentinel id that never matches a real node.
const noSkip = ^uint32(0)
