package netcdf

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/cdf"
)

// GridSpec describes a synthetic ERA5-style dataset.
type GridSpec struct {
	Variable  string // data variable short name, e.g. "t2m"
	Units     string
	LongName  string
	Lats      []float64
	Lons      []float64
	Times     []time.Time
	TimeUnits string // default DefaultTimeUnits

	// Value returns the unpacked value at (time step, lat index, lon index).
	// NaN is written as the fill value.
	Value func(t, i, j int) float64

	// Scale, when non-zero, packs values as int16 with scale_factor and
	// add_offset the way CDS downloads are packed.
	Scale  float64
	Offset float64
}

const packedFill int16 = -32767

// WriteGrid encodes spec as a classic netCDF source dataset laid out
// (time, latitude, longitude).
func WriteGrid(spec GridSpec) ([]byte, error) {
	nt, ny, nx := len(spec.Times), len(spec.Lats), len(spec.Lons)
	if nt == 0 || ny == 0 || nx == 0 {
		return nil, errors.New("write grid: empty axis")
	}
	if spec.Variable == "" || spec.Value == nil {
		return nil, errors.New("write grid: variable and value function are required")
	}
	units := spec.TimeUnits
	if units == "" {
		units = DefaultTimeUnits
	}
	offsets, err := encodeTimes(spec.Times, units)
	if err != nil {
		return nil, fmt.Errorf("write grid: %w", err)
	}
	hours := make([]int32, nt)
	for i, o := range offsets {
		hours[i] = int32(math.Round(o))
	}

	h := cdf.NewHeader([]string{"longitude", "latitude", "time"}, []int{nx, ny, nt})
	h.AddAttribute("", "Conventions", "CF-1.6")

	h.AddVariable("longitude", []string{"longitude"}, []float32{0})
	h.AddAttribute("longitude", "units", "degrees_east")
	h.AddAttribute("longitude", "long_name", "longitude")
	h.AddVariable("latitude", []string{"latitude"}, []float32{0})
	h.AddAttribute("latitude", "units", "degrees_north")
	h.AddAttribute("latitude", "long_name", "latitude")
	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", units)
	h.AddAttribute("time", "long_name", "time")
	h.AddAttribute("time", "calendar", "gregorian")

	dims := []string{"time", "latitude", "longitude"}
	if spec.Scale != 0 {
		h.AddVariable(spec.Variable, dims, []int16{0})
		h.AddAttribute(spec.Variable, "scale_factor", []float64{spec.Scale})
		h.AddAttribute(spec.Variable, "add_offset", []float64{spec.Offset})
		h.AddAttribute(spec.Variable, "_FillValue", []int16{packedFill})
		h.AddAttribute(spec.Variable, "missing_value", []int16{packedFill})
	} else {
		h.AddVariable(spec.Variable, dims, []float32{0})
		h.AddAttribute(spec.Variable, "_FillValue", []float32{FillValue})
	}
	if spec.Units != "" {
		h.AddAttribute(spec.Variable, "units", spec.Units)
	}
	if spec.LongName != "" {
		h.AddAttribute(spec.Variable, "long_name", spec.LongName)
	}
	h.Define()

	mf := newMemFile(nil)
	f, err := cdf.Create(mf, h)
	if err != nil {
		return nil, fmt.Errorf("write grid: %w", err)
	}

	if err := writeAll(f, "longitude", toFloat32(spec.Lons), nx); err != nil {
		return nil, err
	}
	if err := writeAll(f, "latitude", toFloat32(spec.Lats), ny); err != nil {
		return nil, err
	}
	if err := writeAll(f, "time", hours, nt); err != nil {
		return nil, err
	}

	var data interface{}
	if spec.Scale != 0 {
		packed := make([]int16, 0, nt*ny*nx)
		for t := 0; t < nt; t++ {
			for i := 0; i < ny; i++ {
				for j := 0; j < nx; j++ {
					v := spec.Value(t, i, j)
					if math.IsNaN(v) {
						packed = append(packed, packedFill)
						continue
					}
					packed = append(packed, int16(math.Round((v-spec.Offset)/spec.Scale)))
				}
			}
		}
		data = packed
	} else {
		vals := make([]float32, 0, nt*ny*nx)
		for t := 0; t < nt; t++ {
			for i := 0; i < ny; i++ {
				for j := 0; j < nx; j++ {
					v := spec.Value(t, i, j)
					if math.IsNaN(v) {
						vals = append(vals, FillValue)
						continue
					}
					vals = append(vals, float32(v))
				}
			}
		}
		data = vals
	}
	w := f.Writer(spec.Variable, []int{0, 0, 0}, []int{nt, ny, nx})
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write grid: %s: %w", spec.Variable, err)
	}
	return mf.Bytes(), nil
}

func writeAll(f *cdf.File, name string, values interface{}, n int) error {
	w := f.Writer(name, []int{0}, []int{n})
	if _, err := w.Write(values); err != nil {
		return fmt.Errorf("write grid: %s: %w", name, err)
	}
	return nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// Axis returns n evenly spaced values starting at start.
func Axis(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// HourlyTimes returns n hourly timestamps starting at start.
func HourlyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}
