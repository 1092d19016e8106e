// Command era5etl extracts per-city time series from ERA5 reanalysis
// datasets and serves them back by city name.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// Exit codes.
const (
	exitOK            = 0
	exitError         = 1
	exitInvalidRoot   = 2
	exitMissingSource = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrInvalidRoot):
		return exitInvalidRoot
	case errors.Is(err, domain.ErrMissingSource):
		return exitMissingSource
	default:
		return exitError
	}
}
