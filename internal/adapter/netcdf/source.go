// Package netcdf reads gridded ERA5 datasets and writes per-location
// artifacts in the classic netCDF format.
package netcdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ctessum/cdf"
)

var (
	timeDims = []string{"time", "valid_time"}
	latDims  = []string{"latitude", "lat"}
	lonDims  = []string{"longitude", "lon"}
)

// Source is one open source dataset. It satisfies domain.Dataset.
type Source struct {
	file   io.Closer
	nc     *cdf.File
	name   string
	dims   []string
	shape  []int
	latPos int
	lonPos int

	units     string
	longName  string
	timeUnits string

	lats  []float64
	lons  []float64
	times []time.Time

	scale, offset float64
	fills         []float64
}

// OpenSource parses the header and coordinate axes of a dataset. The data
// variable itself is read lazily, one grid point at a time. closer, when
// non-nil, is closed by Source.Close.
func OpenSource(r io.ReaderAt, closer io.Closer) (*Source, error) {
	nc, err := cdf.Open(readOnly{r})
	if err != nil {
		return nil, fmt.Errorf("parse netcdf header: %w", err)
	}

	s := &Source{file: closer, nc: nc, scale: 1}
	if err := s.findDataVariable(); err != nil {
		return nil, err
	}

	timeDim := s.dims[s.timePos()]
	if s.lats, err = readCoord(nc, s.dims[s.latPos]); err != nil {
		return nil, err
	}
	if s.lons, err = readCoord(nc, s.dims[s.lonPos]); err != nil {
		return nil, err
	}
	raw, err := readCoord(nc, timeDim)
	if err != nil {
		return nil, err
	}
	s.timeUnits = stringAttr(nc, timeDim, "units")
	if s.timeUnits == "" {
		return nil, fmt.Errorf("coordinate %s has no units", timeDim)
	}
	if s.times, err = decodeTimes(raw, s.timeUnits); err != nil {
		return nil, err
	}

	s.units = stringAttr(nc, s.name, "units")
	s.longName = stringAttr(nc, s.name, "long_name")
	if v, ok := floatAttr(nc, s.name, "scale_factor"); ok {
		s.scale = v
	}
	if v, ok := floatAttr(nc, s.name, "add_offset"); ok {
		s.offset = v
	}
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := floatAttr(nc, s.name, a); ok {
			s.fills = append(s.fills, v)
		}
	}
	return s, nil
}

// findDataVariable picks the first variable laid out on (time, lat, lon).
// Extra dimensions are allowed when they have length 1.
func (s *Source) findDataVariable() error {
	h := s.nc.Header
	for _, v := range h.Variables() {
		dims := h.Dimensions(v)
		lengths := h.Lengths(v)
		t, la, lo := indexOf(dims, timeDims), indexOf(dims, latDims), indexOf(dims, lonDims)
		if t < 0 || la < 0 || lo < 0 {
			continue
		}
		ok := true
		for i, n := range lengths {
			if i != t && i != la && i != lo && n != 1 {
				ok = false
			}
		}
		if !ok {
			continue
		}
		if lengths[t] == 0 {
			return fmt.Errorf("variable %s: record (unlimited) time dimension is not supported", v)
		}
		s.name, s.dims, s.shape = v, dims, lengths
		s.latPos, s.lonPos = la, lo
		return nil
	}
	return fmt.Errorf("no variable with dimensions (time, latitude, longitude) in %v", h.Variables())
}

func (s *Source) timePos() int { return indexOf(s.dims, timeDims) }

// Variable returns the short name of the data variable, e.g. "t2m".
func (s *Source) Variable() string { return s.name }

func (s *Source) Units() string         { return s.units }
func (s *Source) LongName() string      { return s.longName }
func (s *Source) Latitudes() []float64  { return s.lats }
func (s *Source) Longitudes() []float64 { return s.lons }
func (s *Source) Times() []time.Time    { return s.times }
func (s *Source) TimeUnits() string     { return s.timeUnits }

// ReadPoint reads the time series at one grid point and unpacks it.
func (s *Source) ReadPoint(latIdx, lonIdx int) ([]float64, error) {
	if latIdx < 0 || latIdx >= len(s.lats) || lonIdx < 0 || lonIdx >= len(s.lons) {
		return nil, fmt.Errorf("grid point (%d,%d) outside %dx%d grid", latIdx, lonIdx, len(s.lats), len(s.lons))
	}
	begin := make([]int, len(s.shape))
	end := make([]int, len(s.shape))
	for i := range s.shape {
		end[i] = 1
	}
	t := s.timePos()
	end[t] = s.shape[t]
	begin[s.latPos], end[s.latPos] = latIdx, latIdx+1
	begin[s.lonPos], end[s.lonPos] = lonIdx, lonIdx+1

	r := s.nc.Reader(s.name, begin, end)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s at (%d,%d): %w", s.name, latIdx, lonIdx, err)
	}
	raw, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}

	out := make([]float64, len(raw))
	for i, v := range raw {
		if s.isFill(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v*s.scale + s.offset
	}
	return out, nil
}

func (s *Source) isFill(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	for _, f := range s.fills {
		if v == f {
			return true
		}
	}
	return false
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func readCoord(nc *cdf.File, name string) ([]float64, error) {
	if !hasVariable(nc.Header, name) {
		return nil, fmt.Errorf("missing coordinate variable %s", name)
	}
	r := nc.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read coordinate %s: %w", name, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("coordinate %s: %w", name, err)
	}
	if scale, ok := floatAttr(nc, name, "scale_factor"); ok {
		off, _ := floatAttr(nc, name, "add_offset")
		for i := range vals {
			vals[i] = vals[i]*scale + off
		}
	}
	return vals, nil
}

func hasVariable(h *cdf.Header, name string) bool {
	for _, v := range h.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

func indexOf(dims, names []string) int {
	for i, d := range dims {
		for _, n := range names {
			if d == n {
				return i
			}
		}
	}
	return -1
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return append([]float64(nil), b...), nil
	case []float32:
		return convert(b), nil
	case []int32:
		return convert(b), nil
	case []int16:
		return convert(b), nil
	case []int8:
		return convert(b), nil
	case []uint8:
		return convert(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", buf)
	}
}

func convert[T float32 | int32 | int16 | int8 | uint8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func stringAttr(nc *cdf.File, v, name string) string {
	if s, ok := nc.Header.GetAttribute(v, name).(string); ok {
		return s
	}
	return ""
}

func floatAttr(nc *cdf.File, v, name string) (float64, bool) {
	vals, err := toFloat64(nc.Header.GetAttribute(v, name))
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}
