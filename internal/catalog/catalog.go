// Package catalog loads the list of cities to extract and answers name and
// proximity lookups over it.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sfomuseum/go-csvdict"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// column aliases in priority order
var (
	nameColumns       = []string{"city", "city_ascii", "name"}
	countryColumns    = []string{"iso3", "country_code", "country"}
	populationColumns = []string{"pop", "population"}
	latColumns        = []string{"lat", "latitude"}
	lonColumns        = []string{"lng", "lon", "longitude"}
	provinceColumns   = []string{"province"}
)

// Catalog is an ordered, read-only set of locations.
type Catalog struct {
	locations []domain.Location
}

// New builds a catalog from locations, applying the catalog ordering.
func New(locs []domain.Location) *Catalog {
	sorted := make([]domain.Location, len(locs))
	copy(sorted, locs)
	sortLocations(sorted)
	return &Catalog{locations: sorted}
}

// LoadFile reads a catalog CSV from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a header-keyed catalog CSV. Locations are ordered by longitude
// then latitude, ascending; rows tied on both keep file order.
func Load(r io.Reader) (*Catalog, error) {
	reader, err := csvdict.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	var locs []domain.Location
	for row := 2; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row %d: %w", row, err)
		}
		loc, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("catalog row %d: %w", row, err)
		}
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		return nil, errors.New("catalog is empty")
	}

	sortLocations(locs)
	return &Catalog{locations: locs}, nil
}

func parseRow(rec map[string]string) (domain.Location, error) {
	name := pick(rec, nameColumns)
	if name == "" {
		return domain.Location{}, errors.New("missing city name")
	}
	cc := pick(rec, countryColumns)
	if cc == "" {
		return domain.Location{}, errors.New("missing country code")
	}
	lat, err := parseFloat(rec, latColumns, "latitude")
	if err != nil {
		return domain.Location{}, err
	}
	lon, err := parseFloat(rec, lonColumns, "longitude")
	if err != nil {
		return domain.Location{}, err
	}
	if lat < -90 || lat > 90 {
		return domain.Location{}, fmt.Errorf("latitude %v out of range", lat)
	}

	loc := domain.Location{
		Name:        name,
		CountryCode: cc,
		Province:    pick(rec, provinceColumns),
		Lat:         lat,
		Lon:         lon,
	}
	if pop := pick(rec, populationColumns); pop != "" {
		// population is informational; tolerate junk
		if v, err := strconv.ParseFloat(pop, 64); err == nil {
			loc.Population = v
		}
	}
	return loc, nil
}

func pick(rec map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v, ok := rec[a]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseFloat(rec map[string]string, aliases []string, field string) (float64, error) {
	raw := pick(rec, aliases)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", field, raw)
	}
	return v, nil
}

func sortLocations(locs []domain.Location) {
	sort.SliceStable(locs, func(i, j int) bool {
		if locs[i].Lon != locs[j].Lon {
			return locs[i].Lon < locs[j].Lon
		}
		return locs[i].Lat < locs[j].Lat
	})
}

// Locations returns the catalog in processing order.
func (c *Catalog) Locations() []domain.Location {
	return c.locations
}

// Len returns the number of locations.
func (c *Catalog) Len() int { return len(c.locations) }

// FindByName returns the first location whose name matches exactly, then
// ignoring case, falling back to the first whose province matches.
func (c *Catalog) FindByName(name string) (domain.Location, error) {
	for _, l := range c.locations {
		if l.Name == name {
			return l, nil
		}
	}
	for _, l := range c.locations {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	for _, l := range c.locations {
		if l.Province != "" && l.Province == name {
			return l, nil
		}
	}
	return domain.Location{}, &domain.NotFoundError{Kind: "location", Name: name}
}

// Find returns the location with exactly this name in country countryCode.
// Country codes compare case-insensitively.
func (c *Catalog) Find(name, countryCode string) (domain.Location, error) {
	for _, l := range c.locations {
		if l.Name == name && strings.EqualFold(l.CountryCode, countryCode) {
			return l, nil
		}
	}
	return domain.Location{}, &domain.NotFoundError{Kind: "location", Name: name + " (" + countryCode + ")"}
}

// Nearest returns the location closest to (lat, lon) and its great-circle
// distance in meters.
func (c *Catalog) Nearest(lat, lon float64) (domain.Location, float64, error) {
	if len(c.locations) == 0 {
		return domain.Location{}, 0, &domain.NotFoundError{Kind: "location", Name: fmt.Sprintf("near %.4f,%.4f", lat, lon)}
	}
	query := orb.Point{lon, lat}
	best, bestDist := 0, math.Inf(1)
	for i, l := range c.locations {
		d := geo.Distance(query, orb.Point{l.Lon, l.Lat})
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return c.locations[best], bestDist, nil
}
