package netcdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// FillValue marks missing values in artifacts (the netCDF default for float).
const FillValue float32 = 9.96921e36

// Conventions is the CF version written to artifacts.
const Conventions = "CF-1.6"

// Encode renders a merged series as a classic netCDF file with one time
// dimension, a time coordinate, one float variable per column and the
// location as global attributes. Output is deterministic for equal input.
func Encode(s domain.Series) ([]byte, error) {
	if len(s.Times) == 0 {
		return nil, errors.New("encode artifact: series has no time steps")
	}
	units := s.TimeUnits
	if units == "" {
		units = DefaultTimeUnits
	}
	offsets, err := encodeTimes(s.Times, units)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}

	h := cdf.NewHeader([]string{"time"}, []int{len(s.Times)})
	h.AddAttribute("", "Conventions", Conventions)
	h.AddAttribute("", "city", s.Location.Name)
	h.AddAttribute("", "country_code", s.Location.CountryCode)
	if s.Location.Province != "" {
		h.AddAttribute("", "province", s.Location.Province)
	}
	h.AddAttribute("", "latitude", []float64{s.Location.Lat})
	h.AddAttribute("", "longitude", []float64{s.Location.Lon})
	h.AddAttribute("", "period", s.Period.String())

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", units)
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "calendar", "gregorian")

	cols := make([]domain.Column, len(s.Columns))
	copy(cols, s.Columns)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	for _, c := range cols {
		if c.Name == "time" {
			return nil, errors.New("encode artifact: column name \"time\" is reserved")
		}
		if len(c.Values) != len(s.Times) {
			return nil, fmt.Errorf("encode artifact: column %s has %d values for %d times", c.Name, len(c.Values), len(s.Times))
		}
		h.AddVariable(c.Name, []string{"time"}, []float32{0})
		h.AddAttribute(c.Name, "_FillValue", []float32{FillValue})
		if c.Units != "" {
			h.AddAttribute(c.Name, "units", c.Units)
		}
		if c.LongName != "" {
			h.AddAttribute(c.Name, "long_name", c.LongName)
		}
	}
	h.Define()

	mf := newMemFile(nil)
	f, err := cdf.Create(mf, h)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := writeVar(f, "time", offsets, len(offsets)); err != nil {
		return nil, err
	}
	for _, c := range cols {
		vals := make([]float32, len(c.Values))
		for i, v := range c.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				vals[i] = FillValue
				continue
			}
			vals[i] = float32(v)
		}
		if err := writeVar(f, c.Name, vals, len(vals)); err != nil {
			return nil, err
		}
	}
	return mf.Bytes(), nil
}

func writeVar(f *cdf.File, name string, values interface{}, n int) error {
	w := f.Writer(name, []int{0}, []int{n})
	if _, err := w.Write(values); err != nil {
		return fmt.Errorf("encode artifact: write %s: %w", name, err)
	}
	return nil
}

// Decode parses an artifact written by Encode. Fill values become NaN.
func Decode(data []byte) (domain.Series, error) {
	nc, err := cdf.Open(newMemFile(data))
	if err != nil {
		return domain.Series{}, fmt.Errorf("decode artifact: %w", err)
	}
	return decode(nc)
}

// DecodeReader parses an artifact from a random-access reader.
func DecodeReader(r io.ReaderAt) (domain.Series, error) {
	nc, err := cdf.Open(readOnly{r})
	if err != nil {
		return domain.Series{}, fmt.Errorf("decode artifact: %w", err)
	}
	return decode(nc)
}

func decode(nc *cdf.File) (domain.Series, error) {
	raw, err := readCoord(nc, "time")
	if err != nil {
		return domain.Series{}, fmt.Errorf("decode artifact: %w", err)
	}
	units := stringAttr(nc, "time", "units")
	times, err := decodeTimes(raw, units)
	if err != nil {
		return domain.Series{}, fmt.Errorf("decode artifact: %w", err)
	}

	s := domain.Series{
		Location: domain.Location{
			Name:        stringAttr(nc, "", "city"),
			CountryCode: stringAttr(nc, "", "country_code"),
			Province:    stringAttr(nc, "", "province"),
		},
		TimeUnits: units,
		Times:     times,
	}
	s.Location.Lat, _ = floatAttr(nc, "", "latitude")
	s.Location.Lon, _ = floatAttr(nc, "", "longitude")
	if p := stringAttr(nc, "", "period"); p != "" {
		if _, err := fmt.Sscanf(p, "%d-%d", &s.Period.Year, &s.Period.Month); err != nil {
			return domain.Series{}, fmt.Errorf("decode artifact: period %q: %w", p, err)
		}
	}

	for _, v := range nc.Header.Variables() {
		if v == "time" {
			continue
		}
		vals, err := readCoord(nc, v)
		if err != nil {
			return domain.Series{}, fmt.Errorf("decode artifact: %w", err)
		}
		fill, hasFill := floatAttr(nc, v, "_FillValue")
		for i, x := range vals {
			if hasFill && x == fill {
				vals[i] = math.NaN()
			}
		}
		s.Columns = append(s.Columns, domain.Column{
			Name:     v,
			Units:    stringAttr(nc, v, "units"),
			LongName: stringAttr(nc, v, "long_name"),
			Values:   vals,
		})
	}
	return s, nil
}
