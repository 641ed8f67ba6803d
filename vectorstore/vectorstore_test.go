package vectorstore

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrikhermansson/smallworld/core"
)

func TestAppendGet(t *testing.T) {
	s, err := New(3, core.Euclidean)
	require.NoError(t, err)

	id, err := s.Append([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	id, err = s.Append([]float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 2, s.Len())

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, v)
}

func TestAppendDimensionMismatch(t *testing.T) {
	s, err := New(3, core.Euclidean)
	require.NoError(t, err)

	_, err = s.Append([]float32{1, 2})
	var dm *core.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}

func TestGetOutOfRange(t *testing.T) {
	s, err := New(2, core.Euclidean)
	require.NoError(t, err)
	_, err = s.Append([]float32{1, 2})
	require.NoError(t, err)

	_, err = s.Get(1)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = s.Get(-1)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestDistance(t *testing.T) {
	s, err := New(2, core.Euclidean)
	require.NoError(t, err)
	_, err = s.Append([]float32{0, 0})
	require.NoError(t, err)
	_, err = s.Append([]float32{3, 4})
	require.NoError(t, err)

	d, err := s.Distance(0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)

	d, err = s.DistanceToQuery(0, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)

	_, err = s.Distance(0, 7)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestAngularNormalizesOnAppend(t *testing.T) {
	s, err := New(2, core.Angular)
	require.NoError(t, err)
	id, err := s.Append([]float32{3, 4})
	require.NoError(t, err)

	v, err := s.Get(id)
	require.NoError(t, err)
	norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestWrapCopyOnAppend(t *testing.T) {
	block := []float32{1, 0, 0, 1}
	s, err := Wrap(2, core.Euclidean, block)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	// Appending to a wrapped store must not write through to the block.
	id, err := s.Append([]float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, []float32{1, 0, 0, 1}, block)

	v, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestWrapBadBlock(t *testing.T) {
	_, err := Wrap(3, core.Euclidean, []float32{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestConcurrentReadsDuringAppend(t *testing.T) {
	s, err := New(4, core.Euclidean)
	require.NoError(t, err)

	const total = 500
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Readers hammer whatever prefix of the store exists while the single
	// appender grows it.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n := s.Len()
				if n == 0 {
					continue
				}
				v, err := s.Get(n - 1)
				if err != nil {
					t.Errorf("Get(%d) with Len=%d failed: %v", n-1, n, err)
					return
				}
				if len(v) != 4 {
					t.Errorf("Get returned %d elements; want 4", len(v))
					return
				}
				if _, err := s.DistanceToQuery(0, []float32{0, 0, 0, 0}); err != nil {
					t.Errorf("DistanceToQuery failed: %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		_, err := s.Append([]float32{float32(i), 0, 0, 0})
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, total, s.Len())
	v, err := s.Get(total - 1)
	require.NoError(t, err)
	assert.Equal(t, float32(total-1), v[0])
}
