// Package grid maps geographic points onto a regular latitude/longitude grid
// stored in the [0,360) longitude convention.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// DefaultResolution is the ERA5 single-level grid step in degrees.
const DefaultResolution = 0.25

// eps absorbs float noise when matching coordinate labels.
const eps = 1e-6

// Mode selects how a location is sampled.
type Mode int

const (
	// Interpolate bilinearly interpolates inside the enclosing cell.
	Interpolate Mode = iota
	// Nearest takes the single closest grid point.
	Nearest
)

func (m Mode) String() string {
	switch m {
	case Nearest:
		return "nearest"
	default:
		return "interpolate"
	}
}

// ParseMode accepts "interpolate" or "nearest".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "interpolate", "bilinear":
		return Interpolate, nil
	case "nearest":
		return Nearest, nil
	}
	return Interpolate, fmt.Errorf("unknown extraction mode %q", s)
}

// NormalizeLon maps any longitude into [0,360).
func NormalizeLon(lon float64) float64 {
	l := math.Mod(lon, 360)
	if l < 0 {
		l += 360
	}
	if l >= 360 {
		l -= 360
	}
	return l
}

// Cell is a single grid point.
type Cell struct {
	LatIdx int
	LonIdx int
	Lat    float64
	Lon    float64
}

// Locator resolves query points against one grid.
type Locator struct {
	lats  []float64
	lons  []float64
	scale float64 // grid points per degree
}

// NewLocator validates the axes and builds a Locator. Both axes must be
// strictly monotonic; longitudes must already be in [0,360).
func NewLocator(lats, lons []float64, resolution float64) (*Locator, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("grid resolution must be positive, got %v", resolution)
	}
	if len(lats) == 0 || len(lons) == 0 {
		return nil, errors.New("grid axes must not be empty")
	}
	if !monotonic(lats) {
		return nil, errors.New("latitude axis is not monotonic")
	}
	if !monotonic(lons) {
		return nil, errors.New("longitude axis is not monotonic")
	}
	for _, l := range lons {
		if l < 0 || l >= 360 {
			return nil, fmt.Errorf("longitude %v outside [0,360)", l)
		}
	}
	return &Locator{lats: lats, lons: lons, scale: 1 / resolution}, nil
}

// Latitudes returns the latitude axis.
func (l *Locator) Latitudes() []float64 { return l.lats }

// Longitudes returns the longitude axis.
func (l *Locator) Longitudes() []float64 { return l.lons }

// Nearest returns the grid point closest to (lat, lon) under the fixed grid
// step. Exact ties go to the lower index. The longitude index wraps around the
// seam; the latitude index is clamped to the axis.
func (l *Locator) Nearest(lat, lon float64) (Cell, error) {
	lonN := NormalizeLon(lon)

	latIdx := nearestIndex(l.lats, lat)
	if latIdx < 0 {
		latIdx = 0
	}
	if latIdx >= len(l.lats) {
		latIdx = len(l.lats) - 1
	}

	lonIdx := nearestIndex(l.lons, lonN)
	if isGlobal(l.lons, l.scale) {
		lonIdx = ((lonIdx % len(l.lons)) + len(l.lons)) % len(l.lons)
	} else if lonIdx < 0 || lonIdx >= len(l.lons) {
		return Cell{}, &domain.EmptySelectionError{Lat: lat, Lon: lon, Dim: "longitude"}
	}

	return Cell{
		LatIdx: latIdx,
		LonIdx: lonIdx,
		Lat:    l.lats[latIdx],
		Lon:    l.lons[lonIdx],
	}, nil
}

// nearestIndex rounds the fractional axis position of v, ties downward.
func nearestIndex(axis []float64, v float64) int {
	if len(axis) == 1 {
		return 0
	}
	step := axis[1] - axis[0]
	x := (v - axis[0]) / step
	return int(math.Ceil(x - 0.5 - eps))
}

// isGlobal reports whether the longitude axis covers the full circle.
func isGlobal(lons []float64, scale float64) bool {
	return math.Abs(float64(len(lons))-360*scale) < 0.5
}

// Window is the enclosing cell for interpolation: one or two latitude rows and
// one or two longitude columns. Indices refer to the unrolled source axes;
// Lons are unwrapped so they increase across the seam.
type Window struct {
	LatIdx []int
	LonIdx []int
	Lats   []float64
	Lons   []float64

	// query point; QueryLon is normalized and unwrapped to match Lons
	QueryLat float64
	QueryLon float64
	Rolled   bool
}

// Bounds returns the bracketing labels for (lat, lon):
// latitude [floor(lat*s+1)/s, floor(lat*s)/s] and longitude
// [floor(lon*s)/s mod 360, floor(lon*s+1)/s mod 360] with s = 1/resolution.
func (l *Locator) Bounds(lat, lon float64) (latHi, latLo, lonLo, lonHi float64) {
	s := l.scale
	latHi = math.Floor(lat*s+1) / s
	latLo = math.Floor(lat*s) / s
	lonLo = NormalizeLon(math.Floor(lon*s) / s)
	lonHi = NormalizeLon(math.Floor(lon*s+1) / s)
	return latHi, latLo, lonLo, lonHi
}

// Window selects the enclosing cell for bilinear interpolation. When the
// upper longitude bound wraps past 360 (queries in (-0.25, 0) at 0.25 degree
// resolution) the longitude axis is rolled by one step before slicing, since
// slicing the unrolled axis from 359.75 to 0 selects nothing.
func (l *Locator) Window(lat, lon float64) (Window, error) {
	_, _, lonLo, lonHi := l.Bounds(lat, lon)
	return l.window(lat, lon, lonHi < lonLo)
}

// NaiveWindow slices without seam correction. It exists to show that the
// roll in Window is required.
func (l *Locator) NaiveWindow(lat, lon float64) (Window, error) {
	return l.window(lat, lon, false)
}

func (l *Locator) window(lat, lon float64, roll bool) (Window, error) {
	latHi, latLo, lonLo, lonHi := l.Bounds(lat, lon)

	lonAxis, lonIndex := l.lons, []int(nil)
	if roll {
		lonAxis, lonIndex = RollLon(l.lons, 1)
	}

	latPos := SliceIndices(l.lats, latHi, latLo)
	if len(latPos) == 0 {
		return Window{}, &domain.EmptySelectionError{Lat: lat, Lon: lon, Dim: "latitude"}
	}
	lonPos := SliceIndices(lonAxis, lonLo, lonHi)
	if len(lonPos) == 0 {
		return Window{}, &domain.EmptySelectionError{Lat: lat, Lon: lon, Dim: "longitude"}
	}

	w := Window{
		QueryLat: lat,
		QueryLon: NormalizeLon(lon),
		Rolled:   roll,
	}
	for _, i := range latPos {
		w.LatIdx = append(w.LatIdx, i)
		w.Lats = append(w.Lats, l.lats[i])
	}
	for _, p := range lonPos {
		idx := p
		if lonIndex != nil {
			idx = lonIndex[p]
		}
		w.LonIdx = append(w.LonIdx, idx)
		w.Lons = append(w.Lons, lonAxis[p])
	}
	if len(w.Lons) == 2 && w.Lons[1] < w.Lons[0] {
		w.Lons[1] += 360
	}
	if len(w.Lons) > 0 && w.QueryLon < w.Lons[0]-eps {
		w.QueryLon += 360
	}
	return w, nil
}

// Contains reports whether the grid point (latIdx, lonIdx) is a corner of w.
func (w Window) Contains(latIdx, lonIdx int) bool {
	latOK, lonOK := false, false
	for _, i := range w.LatIdx {
		latOK = latOK || i == latIdx
	}
	for _, j := range w.LonIdx {
		lonOK = lonOK || j == lonIdx
	}
	return latOK && lonOK
}

// Interpolate returns the bilinear estimate at the query point. values is
// laid out [len(LatIdx)][len(LonIdx)]. A NaN corner with non-zero weight
// yields NaN.
func (w Window) Interpolate(values [][]float64) float64 {
	if len(values) != len(w.LatIdx) {
		return math.NaN()
	}
	tLat := weight(w.Lats, w.QueryLat)
	tLon := weight(w.Lons, w.QueryLon)

	rows := make([]float64, len(values))
	for i, row := range values {
		if len(row) != len(w.LonIdx) {
			return math.NaN()
		}
		rows[i] = lerp(row, tLon)
	}
	return lerp(rows, tLat)
}

func weight(coords []float64, q float64) float64 {
	if len(coords) < 2 || coords[1] == coords[0] {
		return 0
	}
	return (q - coords[0]) / (coords[1] - coords[0])
}

func lerp(v []float64, t float64) float64 {
	if len(v) == 1 {
		return v[0]
	}
	switch {
	case t == 0:
		return v[0]
	case t == 1:
		return v[1]
	}
	return v[0]*(1-t) + v[1]*t
}

// RollLon rotates the axis by shift positions the way numpy.roll does:
// rolled[i] = axis[(i-shift) mod n]. index maps rolled positions back to
// original indices.
func RollLon(axis []float64, shift int) (rolled []float64, index []int) {
	n := len(axis)
	rolled = make([]float64, n)
	index = make([]int, n)
	if n == 0 {
		return rolled, index
	}
	for i := range axis {
		src := ((i-shift)%n + n) % n
		rolled[i] = axis[src]
		index[i] = src
	}
	return rolled, index
}

// SliceIndices returns the positions selected by a label slice start..stop
// (both inclusive). On a monotonic axis the slice follows the axis direction
// and is empty when start and stop are reversed. On a non-monotonic axis,
// such as a rolled longitude axis, both labels must be present and the
// positions between them are returned.
func SliceIndices(axis []float64, start, stop float64) []int {
	n := len(axis)
	if n == 0 {
		return nil
	}
	if n == 1 || monotonic(axis) {
		ascending := n == 1 || axis[1] > axis[0]
		var lo, hi int
		if ascending {
			lo = sort.Search(n, func(i int) bool { return axis[i] >= start-eps })
			hi = sort.Search(n, func(i int) bool { return axis[i] > stop+eps })
		} else {
			lo = sort.Search(n, func(i int) bool { return axis[i] <= start+eps })
			hi = sort.Search(n, func(i int) bool { return axis[i] < stop-eps })
		}
		if lo >= hi {
			return nil
		}
		out := make([]int, 0, hi-lo)
		for i := lo; i < hi; i++ {
			out = append(out, i)
		}
		return out
	}

	from, to := labelPos(axis, start), labelPos(axis, stop)
	if from < 0 || to < 0 || from > to {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func labelPos(axis []float64, v float64) int {
	for i, a := range axis {
		if math.Abs(a-v) < eps {
			return i
		}
	}
	return -1
}

func monotonic(axis []float64) bool {
	if len(axis) < 2 {
		return true
	}
	asc := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		if asc && axis[i] <= axis[i-1] {
			return false
		}
		if !asc && axis[i] >= axis[i-1] {
			return false
		}
	}
	return true
}
