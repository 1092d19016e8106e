// Package storage abstracts the filesystem or object store that holds source
// datasets and output artifacts. Keys are slash-separated and relative to the
// store root; the first segment is the container.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// ErrNotExist is returned (wrapped) when a key is absent.
var ErrNotExist = fs.ErrNotExist

// File is an open stored object readable at arbitrary offsets.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Store is the capability set shared by the local and object-store backends.
type Store interface {
	Open(ctx context.Context, key string) (File, error)
	Exists(ctx context.Context, key string) (bool, error)
	ContainerExists(ctx context.Context, container string) (bool, error)
	EnsureContainer(ctx context.Context, container string) error
	// List returns the keys directly under container, sorted.
	List(ctx context.Context, container string) ([]string, error)
	// Write replaces key with data. Readers never observe a partial object.
	Write(ctx context.Context, key string, data []byte) error
	Root() string
	Close() error
}

// New selects a backend from root: a plain path or file:// URL opens a local
// store, scheme://bucket[/prefix] opens an object store.
func New(ctx context.Context, root string) (Store, error) {
	kind, bucketURL, prefix, err := ParseRoot(root)
	if err != nil {
		return nil, err
	}
	if kind == KindLocal {
		return NewLocal(bucketURL)
	}
	return OpenObject(ctx, root, bucketURL, prefix)
}

// Kind identifies the backend a root resolves to.
type Kind string

const (
	KindLocal  Kind = "local"
	KindObject Kind = "object"
)

// ParseRoot splits a root string. For local roots location is the directory;
// for object roots it is the bucket URL (scheme://bucket) and prefix holds the
// remaining path with a trailing slash.
func ParseRoot(root string) (kind Kind, location, prefix string, err error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", "", "", &domain.InvalidRootError{Root: root, Reason: "empty root"}
	}

	scheme, rest, ok := strings.Cut(root, "://")
	if !ok {
		return KindLocal, root, "", nil
	}
	if scheme == "file" {
		if rest == "" {
			return "", "", "", &domain.InvalidRootError{Root: root, Reason: "file root has no path"}
		}
		return KindLocal, rest, "", nil
	}
	if _, perr := url.Parse(root); perr != nil {
		return "", "", "", &domain.InvalidRootError{Root: root, Reason: perr.Error()}
	}

	// "s3://" and "s3:///" have no bucket segment
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" || strings.HasPrefix(rest, "/") {
		return "", "", "", &domain.InvalidRootError{Root: root, Reason: "missing bucket"}
	}

	bucket := segments[0]
	if len(segments) > 1 {
		prefix = path.Join(segments[1:]...) + "/"
	}
	return KindObject, scheme + "://" + bucket, prefix, nil
}

// Join builds a key from a container and a name.
func Join(container, name string) string {
	return path.Join(container, name)
}

// ReadAll reads the whole object at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	f, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, f.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return buf, nil
}
