package example

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/patrikhermansson/smallworld/core"
	"github.com/patrikhermansson/smallworld/hnsw"
)

// BenchConfig controls a benchmark run over one dataset.
type BenchConfig struct {
	Metric         core.Metric
	M              int
	EFConstruction int
	K              int
	EFSearch       []int // one query pass per value
	Threads        int   // query workers; <=0 means GOMAXPROCS
	Tries          int   // query passes per ef value, best time kept
	Seed           int64
	Show           int    // print predicted vs ground truth for the first N queries
	CacheDir       string // "" disables index snapshot caching
	ResultsFile    string // "" disables the TSV results line
}

// BenchResult holds the measurements for one ef_search value.
type BenchResult struct {
	Dataset      string
	EFSearch     int
	BuildSeconds float64
	Recall       float64
	AvgQuery     time.Duration
	QPS          float64
}

// RunDataset builds (or loads a cached) index over the dataset's training
// vectors and measures Recall@k and query latency for each ef_search value
// in the sweep. Results are printed and, when configured, appended to a
// TSV results file.
func RunDataset(ds *Dataset, cfg BenchConfig) ([]BenchResult, error) {
	if len(ds.Train) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no training vectors", core.ErrInvalidParameter, ds.Name)
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 1
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.GOMAXPROCS(0)
	}
	if len(cfg.EFSearch) == 0 {
		cfg.EFSearch = []int{hnsw.DefaultEFSearch}
	}

	fmt.Printf("Dataset %s: %d train, %d test vectors (%d dimensions), distance: %s\n",
		ds.Name, len(ds.Train), len(ds.Test), ds.Dim(), cfg.Metric)

	index, buildSeconds, err := buildOrLoad(ds, cfg)
	if err != nil {
		return nil, err
	}
	defer index.Close()

	stats := index.Stats()
	fmt.Printf("Index ready: %d vectors, max level %d, built in %.2fs\n",
		stats.Count, stats.MaxLevel, buildSeconds)

	var results []BenchResult
	for _, ef := range cfg.EFSearch {
		res, err := runQueries(index, ds, cfg, ef)
		if err != nil {
			return nil, err
		}
		res.BuildSeconds = buildSeconds
		results = append(results, res)

		fmt.Printf("ef_search=%-5d Recall@%d: %.4f  avg query: %v  (%.0f qps, %d threads)\n",
			ef, cfg.K, res.Recall, res.AvgQuery, res.QPS, cfg.Threads)

		if cfg.Show > 0 {
			if err := showSamples(index, ds, cfg, ef); err != nil {
				return nil, err
			}
		}
	}

	if cfg.ResultsFile != "" {
		if err := writeResults(cfg.ResultsFile, cfg, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// buildOrLoad returns an index over the training vectors, loading a cached
// snapshot when one exists for this dataset and parameter combination.
func buildOrLoad(ds *Dataset, cfg BenchConfig) (*hnsw.Index, float64, error) {
	opts := func(o *hnsw.Options) {
		o.M = cfg.M
		o.EFConstruction = cfg.EFConstruction
		o.NumWorkers = cfg.Threads
		if cfg.Seed != 0 {
			o.Seed = cfg.Seed
		}
	}

	var cachePath string
	if cfg.CacheDir != "" {
		cachePath = filepath.Join(cfg.CacheDir,
			fmt.Sprintf("%s_%s_M%d_efCon%d_n%d.idx",
				ds.Name, cfg.Metric, cfg.M, cfg.EFConstruction, len(ds.Train)))
		if _, err := os.Stat(cachePath); err == nil {
			log.Info().Msgf("Loading cached index: %s", cachePath)
			start := time.Now()
			index, err := hnsw.Load(cachePath, opts)
			if err != nil {
				return nil, 0, fmt.Errorf("load cached index %s: %w", cachePath, err)
			}
			return index, time.Since(start).Seconds(), nil
		}
	}

	index, err := hnsw.New(ds.Dim(), cfg.Metric, opts)
	if err != nil {
		return nil, 0, err
	}

	fmt.Printf("Building index (M=%d, ef_construction=%d, %d workers)\n",
		cfg.M, cfg.EFConstruction, cfg.Threads)
	bar := progressbar.Default(int64(len(ds.Train)))
	start := time.Now()

	// Insert in batches so the bar advances during the build.
	const batch = 1000
	for lo := 0; lo < len(ds.Train); lo += batch {
		hi := lo + batch
		if hi > len(ds.Train) {
			hi = len(ds.Train)
		}
		if _, err := index.BulkAdd(ds.Train[lo:hi]); err != nil {
			index.Close()
			return nil, 0, fmt.Errorf("bulk add failed: %w", err)
		}
		if err := bar.Add(hi - lo); err != nil {
			break
		}
	}
	buildSeconds := time.Since(start).Seconds()

	if cachePath != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			index.Close()
			return nil, 0, err
		}
		if err := index.Save(cachePath); err != nil {
			index.Close()
			return nil, 0, fmt.Errorf("save index cache %s: %w", cachePath, err)
		}
		log.Info().Msgf("Cached index at %s", cachePath)
	}
	return index, buildSeconds, nil
}

// runQueries measures one ef_search setting. Each try runs every test query
// once across the worker pool; the fastest try's timing is reported.
func runQueries(index *hnsw.Index, ds *Dataset, cfg BenchConfig, ef int) (BenchResult, error) {
	n := len(ds.Test)
	if n == 0 {
		return BenchResult{Dataset: ds.Name, EFSearch: ef}, nil
	}

	recalls := make([]float64, n)
	bar := progressbar.Default(int64(n * cfg.Tries))

	bestElapsed := time.Duration(0)
	for try := 0; try < cfg.Tries; try++ {
		tasks := make(chan int, n)
		errs := make(chan error, cfg.Threads)
		var wg sync.WaitGroup

		worker := func() {
			defer wg.Done()
			for idx := range tasks {
				res, err := index.SearchWithEF(ds.Test[idx], cfg.K, ef)
				if err != nil {
					errs <- fmt.Errorf("query %d: %w", idx, err)
					return
				}
				recalls[idx] = RecallAtK(res, ds.Neighbors[idx], cfg.K)
				if err := bar.Add(1); err != nil {
					return
				}
			}
		}

		start := time.Now()
		wg.Add(cfg.Threads)
		for i := 0; i < cfg.Threads; i++ {
			go worker()
		}
		for i := 0; i < n; i++ {
			tasks <- i
		}
		close(tasks)
		wg.Wait()
		elapsed := time.Since(start)

		close(errs)
		if err := <-errs; err != nil {
			return BenchResult{}, err
		}
		if try == 0 || elapsed < bestElapsed {
			bestElapsed = elapsed
		}
	}

	var totalRecall float64
	for _, r := range recalls {
		totalRecall += r
	}
	avg := bestElapsed / time.Duration(n)
	return BenchResult{
		Dataset:  ds.Name,
		EFSearch: ef,
		Recall:   totalRecall / float64(n),
		AvgQuery: avg,
		QPS:      float64(n) / bestElapsed.Seconds(),
	}, nil
}

// showSamples prints predicted and ground-truth neighbors for the first few
// queries, for eyeballing a sweep setting.
func showSamples(index *hnsw.Index, ds *Dataset, cfg BenchConfig, ef int) error {
	n := cfg.Show
	if n > len(ds.Test) {
		n = len(ds.Test)
	}
	for i := 0; i < n; i++ {
		res, err := index.SearchWithEF(ds.Test[i], cfg.K, ef)
		if err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		fmt.Printf("Query #%d:\n", i+1)
		fmt.Printf(" -> Predicted:    %s\n", FormatResults(res, cfg.K))
		fmt.Printf(" -> Ground-truth: %s\n", FormatGroundTruth(ds.Neighbors[i], ds.Distances[i], cfg.K))
	}
	return nil
}

// writeResults appends one TSV line per ef_search value to path, creating
// the file with a header when it does not exist.
func writeResults(path string, cfg BenchConfig, results []BenchResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if os.IsNotExist(statErr) {
		if _, err := fmt.Fprintln(f,
			"dataset\tmetric\tM\tef_construction\tef_search\tk\tbuild_s\trecall\tavg_query_us\tqps"); err != nil {
			return err
		}
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(f, "%s\t%s\t%d\t%d\t%d\t%d\t%.2f\t%.4f\t%.1f\t%.0f\n",
			r.Dataset, cfg.Metric, cfg.M, cfg.EFConstruction, r.EFSearch, cfg.K,
			r.BuildSeconds, r.Recall, float64(r.AvgQuery.Microseconds()), r.QPS); err != nil {
			return err
		}
	}
	log.Info().Msgf("Appended %d result rows to %s", len(results), path)
	return nil
}
