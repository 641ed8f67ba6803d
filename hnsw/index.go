// Package hnsw implements a Hierarchical Navigable Small World graph index
// for approximate nearest neighbor search.
//
// The graph is built incrementally: each inserted vector draws a random top
// level from an exponential distribution, is linked into every level from its
// top level down to level 0, and level 0 contains every node. Queries descend
// the hierarchy greedily and run a bounded best-first search at level 0.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/smallworld/core"
	"github.com/patrikhermansson/smallworld/vectorstore"
)

const (
	// maxLevelCap is the upper bound for a node's level.
	maxLevelCap = 32

	// minimumM is the smallest valid neighbor cap.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node at
	// levels above 0. Level 0 allows twice as many.
	DefaultM = 16

	// DefaultEFConstruction is the default build-time beam width.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default query-time beam width used by Search.
	DefaultEFSearch = 100

	// DefaultLevelMult is the default level multiplier: a node appears on
	// level l+1 with probability 1/e relative to level l.
	DefaultLevelMult = 1.0
)

// Options configures index construction.
type Options struct {
	// M is the maximum number of neighbors per node at levels above 0.
	M int

	// M0 is the maximum number of neighbors at level 0. Zero means 2*M.
	M0 int

	// EFConstruction is the beam width of the best-first search used while
	// linking a new node.
	EFConstruction int

	// EFSearch is the beam width Search uses. SearchWithEF overrides it.
	EFSearch int

	// LevelMult scales the exponential level distribution:
	// level = floor(-ln(u) * LevelMult).
	LevelMult float64

	// NumWorkers bounds build parallelism in BulkAdd. Zero means GOMAXPROCS.
	NumWorkers int

	// Seed seeds the level generator. Builds with the same seed, data and a
	// single worker produce identical graphs.
	Seed int64
}

// DefaultOptions returns the default construction options.
func DefaultOptions() Options {
	return Options{
		M:              DefaultM,
		EFConstruction: DefaultEFConstruction,
		EFSearch:       DefaultEFSearch,
		LevelMult:      DefaultLevelMult,
		Seed:           core.GetSeed(),
	}
}

// node is a single graph node. links[l] holds the neighbor ids at level l,
// for l in [0, level]. The mutex serializes neighbor-list mutation during
// concurrent build; after build the lists are effectively immutable.
//
// Neighbor slices are always replaced wholesale, never mutated in place, so
// lists loaded as read-only views of a memory-mapped snapshot stay intact.
type node struct {
	id    uint32
	level int

	mu    sync.RWMutex
	links [][]uint32
}

func newNode(id uint32, level int) *node {
	return &node{
		id:    id,
		level: level,
		links: make([][]uint32, level+1),
	}
}

// neighbors returns the current neighbor list at a level. The returned slice
// must not be modified.
func (n *node) neighbors(level int) []uint32 {
	n.mu.RLock()
	links := n.links[level]
	n.mu.RUnlock()
	return links
}

// Index is an HNSW graph over a vector store.
type Index struct {
	opts  Options
	store *vectorstore.Store

	// mu guards the nodes slice header, entryPoint and maxLevel.
	mu         sync.RWMutex
	nodes      []*node
	entryPoint uint32
	maxLevel   int // -1 while the graph is empty

	rng   *rand.Rand
	rngMu sync.Mutex

	visitedPool sync.Pool

	// mapping is the snapshot mapping backing a memory-mapped load, nil
	// otherwise. Held so Close can unmap it.
	mapping []byte
}

// New creates an empty index with the given dimensionality and metric.
func New(dim int, metric core.Metric, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}

	store, err := vectorstore.New(dim, metric)
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("Creating HNSW index: dim=%d metric=%s M=%d M0=%d efConstruction=%d",
		dim, metric, opts.M, opts.M0, opts.EFConstruction)

	h := &Index{
		opts:     opts,
		store:    store,
		maxLevel: -1,
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}
	h.visitedPool.New = func() any { return newVisitedSet(1024) }
	return h, nil
}

func validateOptions(opts *Options) error {
	if opts.M < minimumM {
		return &paramError{"M", opts.M, "must be >= 2"}
	}
	if opts.M0 == 0 {
		opts.M0 = 2 * opts.M
	}
	if opts.M0 < opts.M {
		return &paramError{"M0", opts.M0, "must be >= M"}
	}
	if opts.EFConstruction <= 0 {
		return &paramError{"EFConstruction", opts.EFConstruction, "must be positive"}
	}
	if opts.EFSearch <= 0 {
		return &paramError{"EFSearch", opts.EFSearch, "must be positive"}
	}
	if opts.LevelMult <= 0 {
		opts.LevelMult = DefaultLevelMult
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.GOMAXPROCS(0)
	}
	return nil
}

// maxDegree returns the neighbor cap for a level.
func (h *Index) maxDegree(level int) int {
	if level == 0 {
		return h.opts.M0
	}
	return h.opts.M
}

// randomLevel draws a node's top level from the exponential distribution
// floor(-ln(u) * LevelMult), capped at maxLevelCap.
func (h *Index) randomLevel() int {
	h.rngMu.Lock()
	u := h.rng.Float64()
	h.rngMu.Unlock()
	for u == 0 {
		h.rngMu.Lock()
		u = h.rng.Float64()
		h.rngMu.Unlock()
	}
	level := int(-math.Log(u) * h.opts.LevelMult)
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

// Stats returns metadata about the index.
func (h *Index) Stats() core.IndexStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return core.IndexStats{
		Count:     len(h.nodes),
		Dimension: h.store.Dim(),
		MaxLevel:  h.maxLevel,
		Metric:    h.store.Metric(),
	}
}

// Len returns the number of indexed vectors.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Vector returns the stored vector for an id.
func (h *Index) Vector(id int) ([]float32, error) {
	return h.store.Get(id)
}

// NodeLevel returns the top level of a node.
func (h *Index) NodeLevel(id int) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if id < 0 || id >= len(h.nodes) {
		return 0, core.ErrOutOfRange
	}
	return h.nodes[id].level, nil
}

// NeighborIDs returns a copy of a node's neighbor list at a level.
func (h *Index) NeighborIDs(id, level int) ([]int, error) {
	h.mu.RLock()
	if id < 0 || id >= len(h.nodes) {
		h.mu.RUnlock()
		return nil, core.ErrOutOfRange
	}
	n := h.nodes[id]
	h.mu.RUnlock()
	if level < 0 || level > n.level {
		return nil, core.ErrOutOfRange
	}
	links := n.neighbors(level)
	out := make([]int, len(links))
	for i, nb := range links {
		out[i] = int(nb)
	}
	return out, nil
}

// Close releases the snapshot mapping of a memory-mapped index. It is a
// no-op for indexes built in memory.
func (h *Index) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mapping == nil {
		return nil
	}
	mapping := h.mapping
	h.mapping = nil
	return munmapFile(mapping)
}

// paramError is an ErrInvalidParameter with the offending option attached.
type paramError struct {
	name   string
	value  any
	reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.name, e.value, e.reason)
}

func (e *paramError) Unwrap() error { return core.ErrInvalidParameter }

// Check interface compliance at compile time.
var _ core.Index = (*Index)(nil)
