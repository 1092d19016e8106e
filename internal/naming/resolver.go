package naming

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

// Resolver maps identifiers to storage keys and checks them against a Store.
type Resolver struct {
	store storage.Store
	ext   string
}

// NewResolver returns a resolver for sources with the given extension.
func NewResolver(store storage.Store, sourceExt string) *Resolver {
	if sourceExt == "" {
		sourceExt = DefaultSourceExt
	}
	return &Resolver{store: store, ext: sourceExt}
}

// Store returns the backing store.
func (r *Resolver) Store() storage.Store { return r.store }

// SourcePath returns the key of a variable's dataset for p. A missing
// container or file yields a *domain.MissingSourceError.
func (r *Resolver) SourcePath(ctx context.Context, p domain.Period, variable string) (string, error) {
	container := SourceContainer(p.Year)
	key := storage.Join(container, SourceID(p.Year, p.Month, variable, r.ext))

	ok, err := r.store.ContainerExists(ctx, container)
	if err != nil {
		return "", fmt.Errorf("check source container %s: %w", container, err)
	}
	if !ok {
		return "", &domain.MissingSourceError{Period: p, ID: key, Err: fmt.Errorf("container %s does not exist", container)}
	}

	ok, err = r.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check source %s: %w", key, err)
	}
	if !ok {
		return "", &domain.MissingSourceError{Period: p, ID: key}
	}
	return key, nil
}

// OutputPath returns the artifact key for loc in p, creating the output
// container when absent.
func (r *Resolver) OutputPath(ctx context.Context, p domain.Period, loc domain.Location) (string, error) {
	container := OutputContainer(p.Year)
	if err := r.store.EnsureContainer(ctx, container); err != nil {
		return "", err
	}
	return storage.Join(container, OutputID(p.Year, p.Month, loc.CountryCode, loc.Name)), nil
}

// LookupOutput returns the key of an existing artifact, or a
// *domain.NotFoundError.
func (r *Resolver) LookupOutput(ctx context.Context, p domain.Period, countryCode, name string) (string, error) {
	key := storage.Join(OutputContainer(p.Year), OutputID(p.Year, p.Month, countryCode, name))
	ok, err := r.store.Exists(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return "", fmt.Errorf("check artifact %s: %w", key, err)
	}
	if !ok {
		return "", &domain.NotFoundError{Kind: "artifact", Name: key}
	}
	return key, nil
}

// ListOutputs returns the artifact keys written for p.
func (r *Resolver) ListOutputs(ctx context.Context, p domain.Period) ([]string, error) {
	container := OutputContainer(p.Year)
	ok, err := r.store.ContainerExists(ctx, container)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	keys, err := r.store.List(ctx, container)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		parsed, err := ParseOutputID(k[len(container)+1:])
		if err != nil || parsed.Year != p.Year || parsed.Month != p.Month {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
