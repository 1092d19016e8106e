// Package naming derives deterministic identifiers for source datasets and
// output artifacts, and resolves them against a storage backend.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSourceExt is the source dataset file extension.
const DefaultSourceExt = "nc"

// OutputExt is the artifact file extension.
const OutputExt = "nc"

// SourceID names the dataset for one variable and month,
// e.g. "2m_temperature_2017_06_era5.nc".
func SourceID(year, month int, variable, ext string) string {
	if ext == "" {
		ext = DefaultSourceExt
	}
	return fmt.Sprintf("%s_%d_%02d_era5.%s", variable, year, month, strings.TrimPrefix(ext, "."))
}

// SourceContainer is the container holding a year's source datasets.
func SourceContainer(year int) string {
	return strconv.Itoa(year)
}

// OutputID names the artifact for one location and month,
// e.g. "2017-06-fra_paris.nc". The result is lowercase with spaces replaced by
// underscores.
func OutputID(year, month int, countryCode, name string) string {
	id := fmt.Sprintf("%d-%02d-%s_%s.%s", year, month, countryCode, name, OutputExt)
	return strings.ReplaceAll(strings.ToLower(id), " ", "_")
}

// OutputContainer is the container holding a year's artifacts.
func OutputContainer(year int) string {
	return "processed/" + strconv.Itoa(year)
}

var outputIDPattern = regexp.MustCompile(`^(\d{4,})-(\d{2})-([^_]+)_(.+)\.` + OutputExt + `$`)

// OutputKey is the parsed form of an output id. CountryCode and Name are in
// their normalized (lowercase, underscored) form.
type OutputKey struct {
	Year        int
	Month       int
	CountryCode string
	Name        string
}

// ParseOutputID inverts OutputID up to normalization.
func ParseOutputID(id string) (OutputKey, error) {
	m := outputIDPattern.FindStringSubmatch(id)
	if m == nil {
		return OutputKey{}, fmt.Errorf("malformed output id %q", id)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return OutputKey{}, fmt.Errorf("malformed output id %q: month %d", id, month)
	}
	return OutputKey{Year: year, Month: month, CountryCode: m[3], Name: m[4]}, nil
}

// Normalize applies the output id normalization to a single component.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}
