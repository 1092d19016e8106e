package pipeline

import (
	"fmt"
	"math"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
)

// sampler reads one variable at arbitrary points of its dataset.
type sampler struct {
	ds      domain.Dataset
	locator *grid.Locator
	mode    grid.Mode
}

func newSampler(ds domain.Dataset, resolution float64, mode grid.Mode) (*sampler, error) {
	loc, err := grid.NewLocator(ds.Latitudes(), ds.Longitudes(), resolution)
	if err != nil {
		return nil, err
	}
	return &sampler{ds: ds, locator: loc, mode: mode}, nil
}

// sample returns the variable's series at (lat, lon).
func (s *sampler) sample(lat, lon float64) (domain.VariableSeries, error) {
	var (
		values []float64
		err    error
	)
	if s.mode == grid.Nearest {
		values, err = s.nearest(lat, lon)
	} else {
		values, err = s.interpolate(lat, lon)
	}
	if err != nil {
		return domain.VariableSeries{}, err
	}

	units, longName := s.ds.Units(), s.ds.LongName()
	if info, ok := domain.LookupVariable(s.ds.Variable()); ok {
		if units == "" {
			units = info.Units
		}
		if longName == "" {
			longName = info.LongName
		}
	}
	return domain.VariableSeries{
		Name:     s.ds.Variable(),
		Units:    units,
		LongName: longName,
		Times:    s.ds.Times(),
		Values:   values,
	}, nil
}

func (s *sampler) nearest(lat, lon float64) ([]float64, error) {
	c, err := s.locator.Nearest(lat, lon)
	if err != nil {
		return nil, err
	}
	return s.ds.ReadPoint(c.LatIdx, c.LonIdx)
}

func (s *sampler) interpolate(lat, lon float64) ([]float64, error) {
	w, err := s.locator.Window(lat, lon)
	if err != nil {
		return nil, err
	}

	// corners[r][c] is the full time series at window corner (r, c)
	corners := make([][][]float64, len(w.LatIdx))
	for r, i := range w.LatIdx {
		corners[r] = make([][]float64, len(w.LonIdx))
		for c, j := range w.LonIdx {
			series, err := s.ds.ReadPoint(i, j)
			if err != nil {
				return nil, err
			}
			corners[r][c] = series
		}
	}

	n := len(corners[0][0])
	out := make([]float64, n)
	cell := make([][]float64, len(w.LatIdx))
	for r := range cell {
		cell[r] = make([]float64, len(w.LonIdx))
	}
	for t := 0; t < n; t++ {
		for r := range corners {
			for c := range corners[r] {
				if t >= len(corners[r][c]) {
					cell[r][c] = math.NaN()
					continue
				}
				cell[r][c] = corners[r][c][t]
			}
		}
		out[t] = w.Interpolate(cell)
	}
	return out, nil
}

// extract samples every variable at loc and merges them on time.
func extract(loc domain.Location, p domain.Period, timeUnits string, samplers []*sampler) (domain.Series, error) {
	parts := make([]domain.VariableSeries, 0, len(samplers))
	for _, s := range samplers {
		vs, err := s.sample(loc.Lat, loc.Lon)
		if err != nil {
			return domain.Series{}, fmt.Errorf("%s at %s: %w", s.ds.Variable(), loc, err)
		}
		parts = append(parts, vs)
	}
	return domain.MergeSeries(loc, p, timeUnits, parts), nil
}
