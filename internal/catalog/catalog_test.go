package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-city-etl/internal/catalog"
	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

const simplemaps = `city,city_ascii,lat,lng,pop,country,iso2,iso3,province
Paris,Paris,48.86669293,2.333335326,9904000,France,FR,FRA,Ile-de-France
London,London,51.49999473,-0.116721844,8567000,United Kingdom,GB,GBR,Westminster
Tokyo,Tokyo,35.68501691,139.7514074,22006299.5,Japan,JP,JPN,Tokyo
Santiago,Santiago,-33.45001382,-70.66704085,2883305.5,Chile,CL,CHL,Región Metropolitana de Santiago
Santiago,Santiago,19.45,-70.7,1200000,Dominican Republic,DO,DOM,Santiago
`

func TestLoad_SimplemapsOrdering(t *testing.T) {
	c, err := catalog.Load(strings.NewReader(simplemaps))
	require.NoError(t, err)
	require.Equal(t, 5, c.Len())

	var names []string
	for _, l := range c.Locations() {
		names = append(names, l.CountryCode+"/"+l.Name)
	}
	want := []string{"DOM/Santiago", "CHL/Santiago", "GBR/London", "FRA/Paris", "JPN/Tokyo"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("catalog order mismatch (-want +got):\n%s", diff)
	}

	paris := c.Locations()[3]
	assert.Equal(t, domain.Location{
		Name:        "Paris",
		CountryCode: "FRA",
		Province:    "Ile-de-France",
		Population:  9904000,
		Lat:         48.86669293,
		Lon:         2.333335326,
	}, paris)
}

func TestLoad_StableForEqualCoordinates(t *testing.T) {
	csv := "name,country_code,latitude,longitude\nB,XXX,1,1\nA,XXX,1,1\nC,XXX,0,1\n"
	c, err := catalog.Load(strings.NewReader(csv))
	require.NoError(t, err)

	var names []string
	for _, l := range c.Locations() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"C", "B", "A"}, names)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"bad latitude":  "city,iso3,lat,lng\nParis,FRA,north,2.3\n",
		"missing lng":   "city,iso3,lat\nParis,FRA,48.8\n",
		"missing name":  "city,iso3,lat,lng\n,FRA,48.8,2.3\n",
		"missing iso3":  "city,iso3,lat,lng\nParis,,48.8,2.3\n",
		"no country":    "city,lat,lng\nParis,48.8,2.3\n",
		"lat too large": "city,iso3,lat,lng\nX,FRA,91,2.3\n",
		"empty":         "city,iso3,lat,lng\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Load(strings.NewReader(csv))
			require.Error(t, err)
		})
	}

	_, err := catalog.Load(strings.NewReader("city,iso3,lat,lng\nParis,FRA,48.8,2.3\nX,FRA,abc,2.3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")

	_, err = catalog.Load(strings.NewReader("city,iso3,lat,lng\nParis,FRA,48.8,2.3\nNowhere,,1,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country code")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path, []byte(simplemaps), 0o600))

	c, err := catalog.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())

	_, err = catalog.LoadFile(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestFindByName(t *testing.T) {
	c, err := catalog.Load(strings.NewReader(simplemaps))
	require.NoError(t, err)

	l, err := c.FindByName("Paris")
	require.NoError(t, err)
	assert.Equal(t, "FRA", l.CountryCode)

	// duplicates resolve to the first in catalog order
	l, err = c.FindByName("Santiago")
	require.NoError(t, err)
	assert.Equal(t, "DOM", l.CountryCode)

	// province fallback
	l, err = c.FindByName("Westminster")
	require.NoError(t, err)
	assert.Equal(t, "London", l.Name)

	l, err = c.FindByName("paris")
	require.NoError(t, err, "case-insensitive fallback")
	assert.Equal(t, "Paris", l.Name)

	_, err = c.FindByName("Atlantis")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFind_ByNameAndCountry(t *testing.T) {
	c, err := catalog.Load(strings.NewReader(simplemaps))
	require.NoError(t, err)

	// both Santiagos are reachable, not only the first in catalog order
	l, err := c.Find("Santiago", "CHL")
	require.NoError(t, err)
	assert.InDelta(t, -33.45, l.Lat, 1e-2)

	l, err = c.Find("Santiago", "dom")
	require.NoError(t, err)
	assert.InDelta(t, 19.45, l.Lat, 1e-2)

	_, err = c.Find("Paris", "USA")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.Find("paris", "FRA")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNearest(t *testing.T) {
	c, err := catalog.Load(strings.NewReader(simplemaps))
	require.NoError(t, err)

	// Versailles
	l, dist, err := c.Nearest(48.80, 2.13)
	require.NoError(t, err)
	assert.Equal(t, "Paris", l.Name)
	assert.InDelta(t, 16_500, dist, 3_000)

	// Greenwich
	l, _, err = c.Nearest(51.48, 0.0)
	require.NoError(t, err)
	assert.Equal(t, "London", l.Name)

	_, _, err = catalog.New(nil).Nearest(0, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
