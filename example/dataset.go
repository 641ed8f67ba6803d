package example

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/smallworld/core"
)

// Dataset bundles training vectors, query vectors, and the exact
// nearest-neighbor ground truth for the queries.
type Dataset struct {
	Name      string
	Train     [][]float32
	Test      [][]float32
	Neighbors [][]int
	Distances [][]float64
}

// Dim returns the dimensionality of the dataset's vectors.
func (d *Dataset) Dim() int {
	if len(d.Train) == 0 {
		return 0
	}
	return len(d.Train[0])
}

// LoadDataset loads a dataset from a directory. The directory must contain:
//   - train.csv       (vectors to index)
//   - test.csv        (query vectors, not indexed)
//   - neighbors.csv   (expected neighbor IDs per query)
//   - distances.csv   (expected distances per query)
func LoadDataset(dir string) (*Dataset, error) {
	log.Info().Msgf("Loading dataset from directory: %s", dir)

	train, err := readCSV[float32](filepath.Join(dir, "train.csv"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to load train.csv: %w", err)
	}

	test, err := readCSV[float32](filepath.Join(dir, "test.csv"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to load test.csv: %w", err)
	}

	neighbors, err := readCSV[int](filepath.Join(dir, "neighbors.csv"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbors.csv: %w", err)
	}

	distances, err := readCSV[float64](filepath.Join(dir, "distances.csv"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to load distances.csv: %w", err)
	}

	if len(test) != len(neighbors) || len(test) != len(distances) {
		return nil, fmt.Errorf("dataset %s: %d test vectors but %d neighbor rows and %d distance rows",
			dir, len(test), len(neighbors), len(distances))
	}

	log.Info().Msgf("Loaded %d training and %d test vectors", len(train), len(test))
	return &Dataset{
		Name:      filepath.Base(filepath.Clean(dir)),
		Train:     train,
		Test:      test,
		Neighbors: neighbors,
		Distances: distances,
	}, nil
}

// Synthetic generates a seeded random dataset with brute-force ground truth.
// Vectors are drawn uniformly from [-1, 1) per component.
func Synthetic(nTrain, nTest, dim, k int, metric core.Metric, seed int64) (*Dataset, error) {
	if nTrain <= 0 || nTest < 0 || dim <= 0 || k <= 0 {
		return nil, fmt.Errorf("%w: synthetic dataset needs positive sizes", core.ErrInvalidParameter)
	}
	if k > nTrain {
		k = nTrain
	}

	rng := rand.New(rand.NewSource(seed))
	randomVec := func() []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		return v
	}

	train := make([][]float32, nTrain)
	for i := range train {
		train[i] = randomVec()
	}
	test := make([][]float32, nTest)
	for i := range test {
		test[i] = randomVec()
	}
	if metric == core.Angular {
		// Angular benchmark datasets ship unit-norm vectors; match that so
		// recorded ground-truth distances equal what the index computes.
		core.NormalizeBatch(train)
		core.NormalizeBatch(test)
	}

	log.Info().Msgf("Generated %d training and %d test vectors (%d dimensions, seed %d)",
		nTrain, nTest, dim, seed)

	neighbors, distances := bruteForce(train, test, k, metric)
	return &Dataset{
		Name:      fmt.Sprintf("synthetic-%dx%d", nTrain, dim),
		Train:     train,
		Test:      test,
		Neighbors: neighbors,
		Distances: distances,
	}, nil
}

// bruteForce computes the exact top-k neighbors of each query by linear scan.
func bruteForce(train, test [][]float32, k int, metric core.Metric) ([][]int, [][]float64) {
	dist := metric.Func()
	neighbors := make([][]int, len(test))
	distances := make([][]float64, len(test))

	type scored struct {
		id   int
		dist float64
	}
	for qi, q := range test {
		all := make([]scored, len(train))
		for id, v := range train {
			all[id] = scored{id: id, dist: dist(q, v)}
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].dist != all[j].dist {
				return all[i].dist < all[j].dist
			}
			return all[i].id < all[j].id
		})
		ids := make([]int, k)
		ds := make([]float64, k)
		for i := 0; i < k; i++ {
			ids[i] = all[i].id
			ds[i] = all[i].dist
		}
		neighbors[qi] = ids
		distances[qi] = ds
	}
	return neighbors, distances
}

// readCSV is a generic CSV reader for types: int, float32, and float64.
func readCSV[T int | float32 | float64](path string, skipHeader bool) ([][]T, error) {
	log.Debug().Msgf("Opening CSV file: %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	var result [][]T

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error in %s: %w", path, err)
		}
		if skipHeader {
			skipHeader = false
			continue
		}
		row := make([]T, len(record))
		for i, val := range record {
			parsed, err := parseValue[T](val)
			if err != nil {
				return nil, fmt.Errorf("parse error at col %d in %s: %w", i, path, err)
			}
			row[i] = parsed
		}
		result = append(result, row)
	}

	log.Debug().Msgf("Parsed %d rows from %s", len(result), path)
	return result, nil
}

// parseValue converts a string to T (int, float32, or float64).
func parseValue[T int | float32 | float64](s string) (T, error) {
	s = strings.TrimSpace(s)
	var zero T
	switch any(zero).(type) {
	case int:
		v, err := strconv.Atoi(s)
		return any(v).(T), err
	case float32:
		v, err := strconv.ParseFloat(s, 32)
		return any(float32(v)).(T), err
	case float64:
		v, err := strconv.ParseFloat(s, 64)
		return any(v).(T), err
	default:
		return zero, fmt.Errorf("unsupported type %T", zero)
	}
}
