package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // gs:// roots
	"gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob" // s3:// roots
	"gocloud.dev/gcerrors"
)

// Object stores keys in a bucket. Containers are key prefixes and exist as
// soon as one object is written under them.
type Object struct {
	bucket *blob.Bucket
	root   string
}

// OpenObject opens bucketURL through the gocloud URL muxer and scopes it to
// prefix. The mem scheme opens a fresh in-process bucket.
func OpenObject(ctx context.Context, root, bucketURL, prefix string) (*Object, error) {
	var (
		b   *blob.Bucket
		err error
	)
	if strings.HasPrefix(bucketURL, "mem://") {
		b = memblob.OpenBucket(nil)
	} else {
		b, err = blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
		}
	}
	return NewObject(b, root, prefix), nil
}

// NewObject wraps an already opened bucket and takes ownership of it: with a
// non-empty prefix b is replaced by a prefixed view and must not be used
// afterwards. Object.Close closes it.
func NewObject(b *blob.Bucket, root, prefix string) *Object {
	if prefix != "" {
		b = blob.PrefixedBucket(b, prefix)
	}
	return &Object{bucket: b, root: root}
}

// Root returns the root string the store was opened with.
func (o *Object) Root() string { return o.root }

type objectFile struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64
}

func (f *objectFile) Size() int64 { return f.size }

// ReadAt issues one ranged read per call.
func (f *objectFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > f.size {
		length = f.size - off
	}
	r, err := f.bucket.NewRangeReader(f.ctx, f.key, off, length, nil)
	if err != nil {
		return 0, fmt.Errorf("range read %s: %w", f.key, err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, p[:length])
	if err != nil {
		return n, fmt.Errorf("range read %s: %w", f.key, err)
	}
	if int(length) < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *objectFile) Close() error { return nil }

// Open returns a random-access handle over key.
func (o *Object) Open(ctx context.Context, key string) (File, error) {
	attrs, err := o.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, notExist(err))
	}
	return &objectFile{ctx: ctx, bucket: o.bucket, key: key, size: attrs.Size}, nil
}

// Exists reports whether key is present.
func (o *Object) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := o.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return ok, nil
}

// ContainerExists reports whether any object lives under container.
func (o *Object) ContainerExists(ctx context.Context, container string) (bool, error) {
	it := o.bucket.List(&blob.ListOptions{Prefix: strings.TrimSuffix(container, "/") + "/"})
	_, err := it.Next(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("list %s: %w", container, err)
	}
	return true, nil
}

// EnsureContainer is a no-op: prefixes need no creation.
func (o *Object) EnsureContainer(context.Context, string) error { return nil }

// List returns the object keys directly under container.
func (o *Object) List(ctx context.Context, container string) ([]string, error) {
	it := o.bucket.List(&blob.ListOptions{
		Prefix:    strings.TrimSuffix(container, "/") + "/",
		Delimiter: "/",
	})
	var keys []string
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", container, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Write uploads data in one request; the object becomes visible only once
// the upload completes.
func (o *Object) Write(ctx context.Context, key string, data []byte) error {
	if err := o.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Close releases the bucket.
func (o *Object) Close() error {
	return o.bucket.Close()
}

func notExist(err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %v", ErrNotExist, err)
	}
	return err
}
