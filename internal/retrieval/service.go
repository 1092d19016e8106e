// Package retrieval is the read path: it resolves a city name to a catalog
// location and loads that location's artifact for a period.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// DefaultMaxGeocodeDistance bounds how far a geocoded point may lie from the
// catalog location it is snapped to.
const DefaultMaxGeocodeDistance = 50_000.0 // meters

// Locations answers name and proximity lookups over the catalog.
type Locations interface {
	FindByName(name string) (domain.Location, error)
	Nearest(lat, lon float64) (domain.Location, float64, error)
	Len() int
}

// OutputLookup finds an existing artifact key.
type OutputLookup interface {
	LookupOutput(ctx context.Context, p domain.Period, countryCode, name string) (string, error)
}

// ArtifactReader decodes a stored artifact.
type ArtifactReader interface {
	ReadArtifact(ctx context.Context, key string) (domain.Series, error)
}

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Resolution records how a query was mapped to a catalog location.
type Resolution struct {
	Location domain.Location `json:"location"`
	Method   string          `json:"method"` // "catalog" or "geocode"
	Distance float64         `json:"distance_m,omitempty"`
}

// Service loads per-city series by name.
type Service struct {
	locations   Locations
	outputs     OutputLookup
	artifacts   ArtifactReader
	geocoder    domain.Geocoder
	maxDistance float64
	pingers     []Pinger
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGeocoder enables the geocoding fallback for names missing from the catalog.
func WithGeocoder(g domain.Geocoder, maxDistance float64) Option {
	return func(s *Service) {
		s.geocoder = g
		if maxDistance > 0 {
			s.maxDistance = maxDistance
		}
	}
}

// WithReadinessCheck adds a dependency to CheckReadiness.
func WithReadinessCheck(p Pinger) Option {
	return func(s *Service) { s.pingers = append(s.pingers, p) }
}

// NewService creates a Service.
func NewService(locations Locations, outputs OutputLookup, artifacts ArtifactReader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		locations:   locations,
		outputs:     outputs,
		artifacts:   artifacts,
		maxDistance: DefaultMaxGeocodeDistance,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve maps a free-text name to a catalog location. Catalog matches win;
// otherwise the geocoder, if configured, supplies a point that is snapped to
// the nearest catalog location within the distance bound.
func (s *Service) Resolve(ctx context.Context, name string) (Resolution, error) {
	loc, err := s.locations.FindByName(name)
	if err == nil {
		return Resolution{Location: loc, Method: "catalog"}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || s.geocoder == nil {
		return Resolution{}, err
	}

	g, gerr := s.geocoder.ForwardGeocode(ctx, name)
	if gerr != nil {
		return Resolution{}, fmt.Errorf("geocode %q: %w", name, gerr)
	}
	if !g.Found() {
		return Resolution{}, err
	}
	loc, dist, nerr := s.locations.Nearest(g.Lat, g.Lon)
	if nerr != nil {
		return Resolution{}, nerr
	}
	if dist > s.maxDistance {
		s.logger.Debug("geocoded point too far from catalog",
			"query", name, "nearest", loc.String(), "distance_m", dist)
		return Resolution{}, err
	}
	s.logger.Debug("resolved by geocoding", "query", name, "location", loc.String(), "distance_m", dist)
	return Resolution{Location: loc, Method: "geocode", Distance: dist}, nil
}

// Series returns the stored series for name in period p.
func (s *Service) Series(ctx context.Context, p domain.Period, name string) (domain.Series, Resolution, error) {
	if err := p.Validate(); err != nil {
		return domain.Series{}, Resolution{}, err
	}
	res, err := s.Resolve(ctx, name)
	if err != nil {
		return domain.Series{}, Resolution{}, err
	}
	key, err := s.outputs.LookupOutput(ctx, p, res.Location.CountryCode, res.Location.Name)
	if err != nil {
		return domain.Series{}, res, err
	}
	series, err := s.artifacts.ReadArtifact(ctx, key)
	if err != nil {
		return domain.Series{}, res, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return series, res, nil
}

// YearSeries concatenates the monthly series of months first..last along
// time. Every month must have an artifact.
func (s *Service) YearSeries(ctx context.Context, year, first, last int, name string) (domain.Series, Resolution, error) {
	periods, err := domain.PeriodsInRange(year, first, last)
	if err != nil {
		return domain.Series{}, Resolution{}, err
	}
	var (
		parts []domain.Series
		res   Resolution
	)
	for _, p := range periods {
		part, r, err := s.Series(ctx, p, name)
		if err != nil {
			return domain.Series{}, r, err
		}
		res = r
		parts = append(parts, part)
	}
	return concat(parts), res, nil
}

// concat appends parts along time, aligning columns by name. Columns absent
// from a part are NaN for its rows.
func concat(parts []domain.Series) domain.Series {
	if len(parts) == 0 {
		return domain.Series{}
	}
	out := domain.Series{
		Location:  parts[0].Location,
		Period:    parts[0].Period,
		TimeUnits: parts[0].TimeUnits,
	}

	meta := map[string]domain.Column{}
	for _, p := range parts {
		for _, c := range p.Columns {
			if _, ok := meta[c.Name]; !ok {
				meta[c.Name] = domain.Column{Name: c.Name, Units: c.Units, LongName: c.LongName}
			}
		}
	}
	names := make([]string, 0, len(meta))
	for n := range meta {
		names = append(names, n)
	}
	sort.Strings(names)

	var total int
	for _, p := range parts {
		total += len(p.Times)
	}
	out.Times = make([]time.Time, 0, total)
	cols := make([]domain.Column, len(names))
	for i, n := range names {
		cols[i] = meta[n]
		cols[i].Values = make([]float64, 0, total)
	}

	for _, p := range parts {
		out.Times = append(out.Times, p.Times...)
		for i, n := range names {
			c, ok := p.Column(n)
			for j := range p.Times {
				v := math.NaN()
				if ok && j < len(c.Values) {
					v = c.Values[j]
				}
				cols[i].Values = append(cols[i].Values, v)
			}
		}
	}
	out.Columns = cols
	return out
}

// CheckReadiness reports whether the catalog is loaded and every registered
// dependency answers.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if s.locations.Len() == 0 {
		return errors.New("catalog is empty")
	}
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
