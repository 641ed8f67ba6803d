// Package vectorstore holds the vectors an index is built over.
//
// Vectors are stored contiguously in a single []float32 slice, providing
// cache locality for sequential access and SIMD distance kernels. Access by
// id is O(1): vector i lives at data[i*dim : (i+1)*dim].
//
// Thread safety: the backing slice is published through an atomic pointer,
// so reads may run concurrently with appends. Appends themselves require
// external serialization. A reader holding a stale snapshot sees every id
// that existed when it loaded the snapshot; stored vectors are immutable,
// so the snapshot never goes bad.
package vectorstore

import (
	"sync/atomic"

	"github.com/patrikhermansson/smallworld/core"
)

// Store owns the contiguous array of input vectors for one index instance.
// The dimensionality is fixed at construction; every appended vector must
// match it. With the Angular metric, vectors are normalized on append so the
// cosine kernel can assume unit norms.
type Store struct {
	dim    int
	metric core.Metric
	dist   core.DistanceFunc
	data   atomic.Pointer[[]float32]

	// owned is false when data aliases a read-only mapping; the first append
	// copies it into process memory.
	owned bool
}

// New creates an empty store with the given dimensionality and metric.
func New(dim int, metric core.Metric) (*Store, error) {
	if dim <= 0 {
		return nil, &core.DimensionMismatchError{Expected: 1, Actual: dim}
	}
	return &Store{
		dim:    dim,
		metric: metric,
		dist:   metric.Func(),
		owned:  true,
	}, nil
}

// Wrap creates a store over an existing contiguous vector block, for example
// a section of a memory-mapped snapshot. The block is treated as read-only;
// appending triggers a copy.
func Wrap(dim int, metric core.Metric, data []float32) (*Store, error) {
	if dim <= 0 || len(data)%dim != 0 {
		return nil, &core.DimensionMismatchError{Expected: dim, Actual: len(data)}
	}
	s := &Store{
		dim:    dim,
		metric: metric,
		dist:   metric.Func(),
		owned:  false,
	}
	s.data.Store(&data)
	return s, nil
}

// load returns the current backing slice snapshot.
func (s *Store) load() []float32 {
	p := s.data.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Append adds a vector and returns its id. Ids are assigned sequentially
// starting at 0. The vector is copied; the caller keeps ownership of vec.
//
// Appends must be serialized by the caller, but may run concurrently with
// reads: the vector is written before the grown slice is published, and
// concurrent readers keep working off the previous snapshot.
func (s *Store) Append(vec []float32) (int, error) {
	if len(vec) != s.dim {
		return 0, &core.DimensionMismatchError{Expected: s.dim, Actual: len(vec)}
	}
	data := s.load()
	if !s.owned {
		copied := make([]float32, len(data), len(data)+s.dim)
		copy(copied, data)
		data = copied
		s.owned = true
	}
	id := len(data) / s.dim
	data = append(data, vec...)
	if s.metric == core.Angular {
		core.NormalizeVector(data[id*s.dim:])
	}
	s.data.Store(&data)
	return id, nil
}

// Get returns the vector with the given id. The returned slice aliases the
// store's backing array and must not be modified.
func (s *Store) Get(id int) ([]float32, error) {
	data := s.load()
	if id < 0 || id >= len(data)/s.dim {
		return nil, core.ErrOutOfRange
	}
	return data[id*s.dim : (id+1)*s.dim], nil
}

// MustGet is Get for ids known to be valid, used on graph-internal hot paths.
func (s *Store) MustGet(id int) []float32 {
	data := s.load()
	return data[id*s.dim : (id+1)*s.dim]
}

// Distance computes the metric distance between two stored vectors.
func (s *Store) Distance(a, b int) (float64, error) {
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Get(b)
	if err != nil {
		return 0, err
	}
	return s.dist(va, vb), nil
}

// DistanceToQuery computes the metric distance between a stored vector and a
// query vector. The query must already be normalized for the Angular metric.
func (s *Store) DistanceToQuery(id int, query []float32) (float64, error) {
	if len(query) != s.dim {
		return 0, &core.DimensionMismatchError{Expected: s.dim, Actual: len(query)}
	}
	v, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return s.dist(v, query), nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	return len(s.load()) / s.dim
}

// Dim returns the vector dimensionality.
func (s *Store) Dim() int {
	return s.dim
}

// Metric returns the configured distance metric.
func (s *Store) Metric() core.Metric {
	return s.metric
}

// DistanceFunc returns the metric's distance function.
func (s *Store) DistanceFunc() core.DistanceFunc {
	return s.dist
}

// Raw returns the backing float32 block, used by the persistence codec.
// The slice must be treated as read-only.
func (s *Store) Raw() []float32 {
	return s.load()
}
