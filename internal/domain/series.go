package domain

import (
	"math"
	"sort"
	"time"
)

// VariableSeries is one variable sampled at one location.
type VariableSeries struct {
	Name     string
	Units    string
	LongName string
	Times    []time.Time
	Values   []float64
}

// Column is one merged variable aligned to Series.Times. NaN marks a missing value.
type Column struct {
	Name     string    `json:"name"`
	Units    string    `json:"units,omitempty"`
	LongName string    `json:"long_name,omitempty"`
	Values   []float64 `json:"-"`
}

// Series is the merged record set for one location and one period.
type Series struct {
	Location  Location    `json:"location"`
	Period    Period      `json:"period"`
	TimeUnits string      `json:"time_units"`
	Times     []time.Time `json:"times"`
	Columns   []Column    `json:"columns"`
}

// Column returns the named column.
func (s Series) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// MergeSeries outer-joins the parts on their time axes. Times missing from a
// part become NaN in that part's column; no row is dropped. Columns are
// ordered by name so repeated merges produce identical layouts.
func MergeSeries(loc Location, p Period, timeUnits string, parts []VariableSeries) Series {
	seen := make(map[int64]struct{})
	var times []time.Time
	for _, part := range parts {
		for _, t := range part.Times {
			k := t.UnixNano()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			times = append(times, t.UTC())
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	index := make(map[int64]int, len(times))
	for i, t := range times {
		index[t.UnixNano()] = i
	}

	cols := make([]Column, 0, len(parts))
	for _, part := range parts {
		values := make([]float64, len(times))
		for i := range values {
			values[i] = math.NaN()
		}
		for i, t := range part.Times {
			if i >= len(part.Values) {
				break
			}
			values[index[t.UnixNano()]] = part.Values[i]
		}
		cols = append(cols, Column{
			Name:     part.Name,
			Units:    part.Units,
			LongName: part.LongName,
			Values:   values,
		})
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	return Series{
		Location:  loc,
		Period:    p,
		TimeUnits: timeUnits,
		Times:     times,
		Columns:   cols,
	}
}
