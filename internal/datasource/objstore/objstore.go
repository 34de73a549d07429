// Package objstore lists and opens product files stored in an S3-compatible
// object store, addressed as s3://bucket/prefix.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"catalogindex/internal/config"
	"catalogindex/internal/datasource"
)

// Scheme prefixes object store locations.
const Scheme = "s3://"

// IsLocation reports whether loc names an object store location.
func IsLocation(loc string) bool { return strings.HasPrefix(loc, Scheme) }

// ParseLocation splits s3://bucket/prefix. The returned prefix is either
// empty or ends with "/".
func ParseLocation(loc string) (bucket, prefix string, err error) {
	if !IsLocation(loc) {
		return "", "", fmt.Errorf("objstore: %q is not an %s location", loc, Scheme)
	}
	rest := strings.TrimPrefix(loc, Scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("objstore: %q has no bucket", loc)
	}
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// store is the subset of the object store API used by Bucket.
type store interface {
	list(ctx context.Context, bucket, prefix string) ([]object, error)
	get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type object struct {
	Key  string
	Size int64
}

// Bucket lists objects directly under one prefix (no recursion).
type Bucket struct {
	st     store
	bucket string
	prefix string
	ext    string
}

// New connects to the configured endpoint. The connection is not verified
// until the first List.
func New(cfg config.ObjectStore, location, ext string) (*Bucket, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("objstore: endpoint is required for %s", location)
	}
	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = secure || u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: create client: %w", err)
	}
	return &Bucket{st: minioStore{c: client}, bucket: bucket, prefix: prefix, ext: ext}, nil
}

// Location returns the s3:// location.
func (b *Bucket) Location() string { return Scheme + b.bucket + "/" + b.prefix }

// List returns the objects under the prefix whose names carry the
// extension, sorted by name.
func (b *Bucket) List(ctx context.Context) ([]datasource.Entry, error) {
	objs, err := b.st.list(ctx, b.bucket, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.Location(), err)
	}
	out := make([]datasource.Entry, 0, len(objs))
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, b.prefix)
		if name == "" || strings.Contains(name, "/") || !strings.HasSuffix(name, b.ext) {
			continue
		}
		out = append(out, datasource.Entry{Name: name, Size: o.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open streams one object.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != path.Base(name) {
		return nil, fmt.Errorf("open %q: not an object name under %s", name, b.Location())
	}
	rc, err := b.st.get(ctx, b.bucket, b.prefix+name)
	if err != nil {
		return nil, fmt.Errorf("open %s%s: %w", b.Location(), name, err)
	}
	return rc, nil
}

type minioStore struct{ c *minio.Client }

func (m minioStore) list(ctx context.Context, bucket, prefix string) ([]object, error) {
	var out []object
	for info := range m.c.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, object{Key: info.Key, Size: info.Size})
	}
	return out, nil
}

func (m minioStore) get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces missing keys before parsing starts.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}
