package netcdf

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultTimeUnits is the ERA5 time encoding.
const DefaultTimeUnits = "hours since 1900-01-01 00:00:00.0"

var epochLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeUnits splits a CF "<unit> since <epoch>" string.
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing \"since\"", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "s":
		step = time.Second
	case "minutes", "minute", "mins":
		step = time.Minute
	case "hours", "hour", "hrs", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}

	since = strings.TrimSpace(since)
	// drop a trailing UTC marker, e.g. "1970-01-01 00:00:00 UTC"
	since = strings.TrimSuffix(since, " UTC")
	for _, layout := range epochLayouts {
		if epoch, err := time.Parse(layout, since); err == nil {
			return step, epoch.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable epoch %q", units, since)
}

// decodeTimes converts CF offsets to UTC timestamps.
func decodeTimes(values []float64, units string) ([]time.Time, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		out[i] = epoch.Add(time.Duration(math.Round(v * float64(step))))
	}
	return out, nil
}

// encodeTimes converts timestamps to CF offsets.
func encodeTimes(times []time.Time, units string) ([]float64, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = float64(t.Sub(epoch)) / float64(step)
	}
	return out, nil
}
