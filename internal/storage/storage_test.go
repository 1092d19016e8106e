package storage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

func TestParseRoot(t *testing.T) {
	cases := []struct {
		root     string
		kind     storage.Kind
		location string
		prefix   string
	}{
		{"data/", storage.KindLocal, "data/", ""},
		{"/srv/era5", storage.KindLocal, "/srv/era5", ""},
		{"file:///srv/era5", storage.KindLocal, "/srv/era5", ""},
		{"s3://era5-bucket", storage.KindObject, "s3://era5-bucket", ""},
		{"s3://era5-bucket/", storage.KindObject, "s3://era5-bucket", ""},
		{"s3://era5-bucket/reanalysis/single-levels/", storage.KindObject, "s3://era5-bucket", "reanalysis/single-levels/"},
		{"gs://b/p", storage.KindObject, "gs://b", "p/"},
		{"mem://test", storage.KindObject, "mem://test", ""},
	}
	for _, tc := range cases {
		t.Run(tc.root, func(t *testing.T) {
			kind, location, prefix, err := storage.ParseRoot(tc.root)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.location, location)
			assert.Equal(t, tc.prefix, prefix)
		})
	}
}

func TestParseRoot_Invalid(t *testing.T) {
	for _, root := range []string{"", "s3://", "s3:///", "s3:///prefix", "file://"} {
		t.Run(root, func(t *testing.T) {
			_, _, _, err := storage.ParseRoot(root)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidRoot)
		})
	}
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := storage.New(context.Background(), "s3://")
	require.ErrorIs(t, err, domain.ErrInvalidRoot)
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := storage.New(ctx, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &storage.Local{}, s)

	s, err = storage.New(ctx, "mem://bucket/prefix")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &storage.Object{}, s)
	assert.Equal(t, "mem://bucket/prefix", s.Root())
}

// storeContract runs the same behavior checks against every backend.
func storeContract(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.ContainerExists(ctx, "2017")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Open(ctx, "2017/missing.nc")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotExist)

	require.NoError(t, s.EnsureContainer(ctx, "processed/2017"))
	require.NoError(t, s.Write(ctx, "2017/b.nc", []byte("bravo")))
	require.NoError(t, s.Write(ctx, "2017/a.nc", []byte("alpha")))
	require.NoError(t, s.Write(ctx, "2017/nested/c.nc", []byte("charlie")))

	ok, err = s.ContainerExists(ctx, "2017")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "2017/a.nc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "2017/zzz.nc")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, "2017")
	require.NoError(t, err)
	assert.Equal(t, []string{"2017/a.nc", "2017/b.nc"}, keys)

	f, err := s.Open(ctx, "2017/a.nc")
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.Size())

	buf := make([]byte, 3)
	n, err := f.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "lph", string(buf))

	n, err = f.ReadAt(make([]byte, 10), 2)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, f.Close())

	// overwrite replaces content
	require.NoError(t, s.Write(ctx, "2017/a.nc", []byte("alpha-2")))
	data, err := storage.ReadAll(ctx, s, "2017/a.nc")
	require.NoError(t, err)
	assert.Equal(t, "alpha-2", string(data))
}

func TestLocal_Contract(t *testing.T) {
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	storeContract(t, s)
}

func TestObject_Contract(t *testing.T) {
	s := storage.NewObject(memblob.OpenBucket(nil), "mem://bucket", "")
	defer s.Close()
	storeContract(t, s)
}

func TestObject_PrefixedContract(t *testing.T) {
	s := storage.NewObject(memblob.OpenBucket(nil), "mem://bucket/era5", "era5/")
	defer s.Close()
	storeContract(t, s)
}

// openDir opens a bucket over dir; two buckets over one dir share objects.
func openDir(t *testing.T, dir string) *blob.Bucket {
	t.Helper()
	b, err := fileblob.OpenBucket(dir, nil)
	require.NoError(t, err)
	return b
}

func TestObject_PrefixIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	scoped := storage.NewObject(openDir(t, dir), "file://bucket/era5", "era5/")
	defer scoped.Close()
	whole := storage.NewObject(openDir(t, dir), "file://bucket", "")
	defer whole.Close()

	require.NoError(t, scoped.Write(ctx, "2017/a.nc", []byte("x")))
	require.NoError(t, whole.Write(ctx, "2017/b.nc", []byte("y")))

	ok, err := whole.Exists(ctx, "era5/2017/a.nc")
	require.NoError(t, err)
	assert.True(t, ok, "scoped keys land under the prefix")

	ok, err = whole.Exists(ctx, "2017/a.nc")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = scoped.Exists(ctx, "2017/b.nc")
	require.NoError(t, err)
	assert.False(t, ok, "unprefixed keys are invisible through the prefix")

	keys, err := scoped.List(ctx, "2017")
	require.NoError(t, err)
	assert.Equal(t, []string{"2017/a.nc"}, keys)
}

func TestLocal_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "processed/2017/x.nc", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(dir, "processed", "2017"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.nc", entries[0].Name())
}

func TestLocal_OpenContainerIsNotAFile(t *testing.T) {
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "2017"))

	_, err = s.Open(ctx, "2017")
	require.ErrorIs(t, err, storage.ErrNotExist)

	ok, err := s.Exists(ctx, "2017")
	require.NoError(t, err)
	assert.False(t, ok)
}
