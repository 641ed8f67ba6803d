package core

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// GetSeed receives a seed value for random number generation from the
// SMALLWORLD_SEED environment variable. It falls back to the current time.
func GetSeed() int64 {
	seedStr := os.Getenv("SMALLWORLD_SEED")
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Info().Msgf("Using seed from SMALLWORLD_SEED value: %d", seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse SMALLWORLD_SEED value: %s", seedStr)
	}

	seed := time.Now().UnixNano()
	log.Debug().Msgf("Using current time as seed: %d", seed)
	return seed
}
