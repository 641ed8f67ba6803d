package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/smallworld/core"
	"github.com/patrikhermansson/smallworld/example"
	"github.com/patrikhermansson/smallworld/hnsw"
)

// Execute parses the command line and runs the benchmark harness.
func Execute() {
	fs := flag.NewFlagSet("smallworld", flag.ExitOnError)

	datasetDir := fs.String("dataset", "", "directory with train/test/neighbors/distances CSV files")
	nTrain := fs.Int("synthetic", 10000, "synthetic training vectors (used when -dataset is empty)")
	nTest := fs.Int("queries", 100, "synthetic query vectors")
	dim := fs.Int("dim", 32, "synthetic vector dimensions")
	metricName := fs.String("metric", "euclidean", "distance metric: euclidean or angular")
	m := fs.Int("m", hnsw.DefaultM, "max neighbors per node above level 0")
	efCon := fs.Int("ef-construction", hnsw.DefaultEFConstruction, "beam width during construction")
	efSweep := fs.String("ef-search", "10,50,100,200", "comma-separated ef_search values to sweep")
	k := fs.Int("k", 10, "neighbors to retrieve per query")
	threads := fs.Int("threads", 0, "worker threads (0 means all CPUs)")
	tries := fs.Int("tries", 3, "query passes per ef_search value, best time kept")
	seed := fs.Int64("seed", 0, "random seed (0 means SMALLWORLD_SEED or current time)")
	show := fs.Int("show", 0, "print predicted vs ground-truth neighbors for the first N queries")
	cacheDir := fs.String("cache", "", "directory for cached index snapshots")
	resultsFile := fs.String("results", "", "TSV file to append benchmark results to")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	metric, err := core.ParseMetric(*metricName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid metric")
	}
	sweep, err := parseSweep(*efSweep)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ef-search sweep")
	}

	var ds *example.Dataset
	if *datasetDir != "" {
		ds, err = example.LoadDataset(*datasetDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load dataset")
		}
	} else {
		benchSeed := *seed
		if benchSeed == 0 {
			benchSeed = core.GetSeed()
		}
		fmt.Printf("Generating synthetic dataset (%d vectors, %d dimensions)\n", *nTrain, *dim)
		ds, err = example.Synthetic(*nTrain, *nTest, *dim, *k, metric, benchSeed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate synthetic dataset")
		}
	}

	_, err = example.RunDataset(ds, example.BenchConfig{
		Metric:         metric,
		M:              *m,
		EFConstruction: *efCon,
		K:              *k,
		EFSearch:       sweep,
		Threads:        *threads,
		Tries:          *tries,
		Seed:           *seed,
		Show:           *show,
		CacheDir:       *cacheDir,
		ResultsFile:    *resultsFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Benchmark failed")
	}
}

// parseSweep parses a comma-separated list of positive ef_search values.
func parseSweep(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	sweep := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid ef_search value %q", p)
		}
		sweep = append(sweep, v)
	}
	if len(sweep) == 0 {
		return nil, fmt.Errorf("empty ef_search sweep")
	}
	return sweep, nil
}
