package netcdf

import (
	"context"
	"fmt"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

// Codec reads source datasets and artifacts from a store and encodes new
// artifacts.
type Codec struct {
	store storage.Store
}

// NewCodec returns a codec backed by store.
func NewCodec(store storage.Store) *Codec {
	return &Codec{store: store}
}

// OpenDataset opens the source dataset at key. The caller must Close it.
func (c *Codec) OpenDataset(ctx context.Context, key string) (domain.Dataset, error) {
	f, err := c.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	src, err := OpenSource(f, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open source %s: %w", key, err)
	}
	return src, nil
}

// EncodeSeries renders s as artifact bytes.
func (c *Codec) EncodeSeries(s domain.Series) ([]byte, error) {
	return Encode(s)
}

// ReadArtifact decodes the artifact stored at key.
func (c *Codec) ReadArtifact(ctx context.Context, key string) (domain.Series, error) {
	f, err := c.store.Open(ctx, key)
	if err != nil {
		return domain.Series{}, err
	}
	defer f.Close()

	s, err := DecodeReader(f)
	if err != nil {
		return domain.Series{}, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return s, nil
}
