package core

// Index represents a buildable, persistable ANN index.
//
// The lifecycle is build-then-query: vectors are inserted (one by one or in
// bulk), then the index answers an unbounded number of read-only searches.
// Implementations must keep incremental Add working after an initial bulk
// build and after loading a snapshot from disk.
type Index interface {

	// Add inserts a single vector and returns its assigned id.
	// Ids are dense integers assigned in insertion order, starting at 0.
	Add(vector []float32) (int, error)

	// BulkAdd inserts a batch of vectors, possibly in parallel, and returns
	// the id of the first inserted vector. Ids are contiguous.
	BulkAdd(vectors [][]float32) (int, error)

	// Search returns the ids and distances of the k nearest neighbors for a
	// query vector, using the index's default search beam width.
	Search(query []float32, k int) ([]Neighbor, error)

	// SearchWithEF is Search with an explicit beam width. ef must be >= k.
	SearchWithEF(query []float32, k, ef int) ([]Neighbor, error)

	// Stats returns metadata about the index, such as count and dimensionality.
	Stats() IndexStats

	// Save persists the index state to the specified file.
	Save(path string) error
}

// Neighbor holds a neighbor's id and its computed distance. Search results
// are ordered by ascending distance.
type Neighbor struct {
	ID       int
	Distance float64
}

// IndexStats contains metadata about the index.
type IndexStats struct {
	Count     int    // total number of indexed vectors
	Dimension int    // dimensionality of vectors
	MaxLevel  int    // highest populated graph level
	Metric    Metric // distance metric
}
