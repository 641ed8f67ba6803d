package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// init initializes the logging configuration based on the DEBUG_SMALLWORLD
// environment variable. It sets the global logging level to Disabled, Debug,
// or Info based on the value of DEBUG_SMALLWORLD.
func init() {
	debugMode := strings.TrimSpace(strings.ToLower(os.Getenv("DEBUG_SMALLWORLD")))

	if debugMode == "off" || debugMode == "0" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	} else if debugMode == "full" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
