package grid_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
)

// era5Axes returns the global 0.25 degree ERA5 axes: latitude descending from
// 90 to -90 and longitude ascending from 0 to 359.75.
func era5Axes() (lats, lons []float64) {
	for i := 0; i <= 720; i++ {
		lats = append(lats, 90-float64(i)*0.25)
	}
	for j := 0; j < 1440; j++ {
		lons = append(lons, float64(j)*0.25)
	}
	return lats, lons
}

func newERA5Locator(t *testing.T) *grid.Locator {
	t.Helper()
	lats, lons := era5Axes()
	loc, err := grid.NewLocator(lats, lons, grid.DefaultResolution)
	require.NoError(t, err)
	return loc
}

func TestNormalizeLon(t *testing.T) {
	cases := map[float64]float64{
		0:      0,
		-0.1:   359.9,
		-180:   180,
		180:    180,
		359.75: 359.75,
		360:    0,
		720.5:  0.5,
		-360:   0,
	}
	for in, want := range cases {
		assert.InDelta(t, want, grid.NormalizeLon(in), 1e-9, "lon %v", in)
	}
}

func TestNormalizeLon_RangeProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		lon := r.Float64()*2000 - 1000
		got := grid.NormalizeLon(lon)
		require.GreaterOrEqual(t, got, 0.0)
		require.Less(t, got, 360.0)
		// same point on the circle
		diff := math.Mod(math.Abs(got-lon), 360)
		assert.True(t, diff < 1e-6 || 360-diff < 1e-6, "lon %v -> %v", lon, got)
	}
}

func TestNewLocator_Validation(t *testing.T) {
	lats, lons := era5Axes()

	_, err := grid.NewLocator(lats, lons, 0)
	require.Error(t, err)

	_, err = grid.NewLocator(nil, lons, 0.25)
	require.Error(t, err)

	_, err = grid.NewLocator([]float64{1, 3, 2}, lons, 0.25)
	require.Error(t, err)

	_, err = grid.NewLocator(lats, []float64{-0.25, 0, 0.25}, 0.25)
	require.Error(t, err)
}

func TestWindow_Interior(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(48.86, 2.35)
	require.NoError(t, err)

	assert.Equal(t, []float64{49, 48.75}, w.Lats)
	assert.Equal(t, []float64{2.25, 2.5}, w.Lons)
	assert.Equal(t, []int{164, 165}, w.LatIdx)
	assert.Equal(t, []int{9, 10}, w.LonIdx)
	assert.False(t, w.Rolled)
}

func TestWindow_SeamRollIsNecessaryAndSufficient(t *testing.T) {
	loc := newERA5Locator(t)

	for _, lon := range []float64{-0.1, -0.25, -0.01, 359.9} {
		naive, err := loc.NaiveWindow(51.5, lon)
		require.Error(t, err, "lon %v", lon)
		assert.ErrorIs(t, err, domain.ErrEmptySelection)
		assert.Empty(t, naive.LonIdx)

		w, err := loc.Window(51.5, lon)
		require.NoError(t, err, "lon %v", lon)
		assert.True(t, w.Rolled)
		assert.Equal(t, []int{1439, 0}, w.LonIdx, "lon %v", lon)
		assert.Equal(t, []float64{359.75, 360}, w.Lons, "longitudes are unwrapped across the seam")
		assert.Len(t, w.LatIdx, 2)
	}
}

func TestWindow_NoRollAwayFromSeam(t *testing.T) {
	loc := newERA5Locator(t)

	for _, lon := range []float64{0, 0.1, -0.3, 179.9, -179.9, 359.5} {
		w, err := loc.Window(10, lon)
		require.NoError(t, err, "lon %v", lon)
		assert.False(t, w.Rolled, "lon %v", lon)
		assert.Len(t, w.LonIdx, 2, "lon %v", lon)
	}
}

func TestWindow_Poles(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(90, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, w.LatIdx, "north pole selects the single top row")

	w, err = loc.Window(-90, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{719, 720}, w.LatIdx)
}

func TestWindow_RegionalGridOutsideIsEmpty(t *testing.T) {
	lats := []float64{50, 49.75, 49.5}
	lons := []float64{2, 2.25, 2.5}
	loc, err := grid.NewLocator(lats, lons, 0.25)
	require.NoError(t, err)

	_, err = loc.Window(10, 2.1)
	require.ErrorIs(t, err, domain.ErrEmptySelection)

	var ese *domain.EmptySelectionError
	require.ErrorAs(t, err, &ese)
	assert.Equal(t, "latitude", ese.Dim)

	_, err = loc.Window(49.6, 100)
	require.ErrorIs(t, err, domain.ErrEmptySelection)

	_, err = loc.Nearest(49.6, 100)
	require.ErrorIs(t, err, domain.ErrEmptySelection)
}

func TestInterpolate_Bilinear(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(48.8, 2.3)
	require.NoError(t, err)

	// value = lat + lon at each corner makes the bilinear estimate exact
	values := [][]float64{
		{w.Lats[0] + w.Lons[0], w.Lats[0] + w.Lons[1]},
		{w.Lats[1] + w.Lons[0], w.Lats[1] + w.Lons[1]},
	}
	assert.InDelta(t, 48.8+2.3, w.Interpolate(values), 1e-9)
}

func TestInterpolate_AcrossSeam(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(51.5, -0.1)
	require.NoError(t, err)

	values := [][]float64{{10, 20}, {10, 20}}
	// -0.1 sits 0.6 of the way from 359.75 to 360
	assert.InDelta(t, 16, w.Interpolate(values), 1e-9)
}

func TestInterpolate_OnGridPointIgnoresOtherCorners(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(48.75, 2.25)
	require.NoError(t, err)

	nan := math.NaN()
	values := [][]float64{{nan, nan}, {7, nan}}
	assert.InDelta(t, 7, w.Interpolate(values), 1e-12)
}

func TestInterpolate_NaNPropagates(t *testing.T) {
	loc := newERA5Locator(t)

	w, err := loc.Window(48.8, 2.3)
	require.NoError(t, err)

	values := [][]float64{{1, math.NaN()}, {1, 1}}
	assert.True(t, math.IsNaN(w.Interpolate(values)))
	assert.True(t, math.IsNaN(w.Interpolate([][]float64{{1, 1}})), "shape mismatch")
}

func TestNearest_TiesGoToLowerIndex(t *testing.T) {
	loc := newERA5Locator(t)

	c, err := loc.Nearest(48.86, 2.35)
	require.NoError(t, err)
	assert.Equal(t, 48.75, c.Lat)
	assert.Equal(t, 2.25, c.Lon)

	// 2.375 is halfway between 2.25 (index 9) and 2.5 (index 10)
	c, err = loc.Nearest(0, 2.375)
	require.NoError(t, err)
	assert.Equal(t, 9, c.LonIdx)

	// latitude axis descends, so the lower index is the northern point
	c, err = loc.Nearest(48.875, 0)
	require.NoError(t, err)
	assert.Equal(t, 49.0, c.Lat)
}

func TestNearest_WrapsAndClamps(t *testing.T) {
	loc := newERA5Locator(t)

	c, err := loc.Nearest(0, -0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, c.LonIdx, "-0.1 rounds to 0 across the seam")

	c, err = loc.Nearest(0, -0.2)
	require.NoError(t, err)
	assert.Equal(t, 1439, c.LonIdx)

	c, err = loc.Nearest(95, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, c.LatIdx)
}

func TestNearest_IsAlwaysAWindowCorner(t *testing.T) {
	loc := newERA5Locator(t)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		lat := r.Float64()*179 - 89.5
		lon := r.Float64()*360 - 180

		w, err := loc.Window(lat, lon)
		require.NoError(t, err, "lat %v lon %v", lat, lon)
		c, err := loc.Nearest(lat, lon)
		require.NoError(t, err)

		require.True(t, w.Contains(c.LatIdx, c.LonIdx),
			"nearest (%d,%d) outside window %v x %v for lat %v lon %v",
			c.LatIdx, c.LonIdx, w.LatIdx, w.LonIdx, lat, lon)
	}
}

func TestRollLon(t *testing.T) {
	rolled, index := grid.RollLon([]float64{0, 1, 2, 3}, 1)
	assert.Equal(t, []float64{3, 0, 1, 2}, rolled)
	assert.Equal(t, []int{3, 0, 1, 2}, index)

	rolled, _ = grid.RollLon([]float64{0, 1, 2, 3}, -1)
	assert.Equal(t, []float64{1, 2, 3, 0}, rolled)

	rolled, index = grid.RollLon(nil, 1)
	assert.Empty(t, rolled)
	assert.Empty(t, index)
}

func TestSliceIndices(t *testing.T) {
	asc := []float64{0, 0.25, 0.5, 0.75}
	assert.Equal(t, []int{1, 2}, grid.SliceIndices(asc, 0.25, 0.5))
	assert.Equal(t, []int{0, 1}, grid.SliceIndices(asc, -1, 0.3))
	assert.Empty(t, grid.SliceIndices(asc, 0.5, 0.25), "reversed bounds select nothing")

	desc := []float64{1, 0.75, 0.5}
	assert.Equal(t, []int{0, 1}, grid.SliceIndices(desc, 1, 0.75))
	assert.Empty(t, grid.SliceIndices(desc, 0.75, 1))

	rolled := []float64{0.75, 0, 0.25, 0.5}
	assert.Equal(t, []int{0, 1}, grid.SliceIndices(rolled, 0.75, 0))
	assert.Empty(t, grid.SliceIndices(rolled, 0.1, 0.25), "labels must exist on a rolled axis")
}

func TestParseMode(t *testing.T) {
	m, err := grid.ParseMode("nearest")
	require.NoError(t, err)
	assert.Equal(t, grid.Nearest, m)
	assert.Equal(t, "nearest", m.String())

	m, err = grid.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, grid.Interpolate, m)

	_, err = grid.ParseMode("cubic")
	require.Error(t, err)
}
