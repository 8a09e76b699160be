// Package core defines the object storage abstraction the catalog reads
// plate images through. Images are produced by acquisition systems outside
// the catalog; the catalog lists them at ingest time and hands out URLs.
package core

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem reads images from a local directory tree.
	DriverFilesystem Driver = "fs"
	// DriverS3 reads images from an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps images in process memory (tests, demo).
	DriverMemory Driver = "memory"
)

var (
	// Error wraps backend failures.
	Error = errs.Class("blob")
	// ErrNotFound is returned when a key has no object.
	ErrNotFound = errs.Class("blob not found")
	// ErrInvalidKey is returned for keys that are empty or escape the store.
	ErrInvalidKey = errs.Class("invalid blob key")
)

// DefaultURLExpiry applies when URL is called without an expiry.
const DefaultURLExpiry = 15 * time.Minute

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Name returns the last path segment of the key.
func (i Info) Name() string {
	return i.Key[strings.LastIndex(i.Key, "/")+1:]
}

// Store is the subset of object storage the catalog needs.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// List returns the objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// URL returns a link a browser can fetch the object from. Backends that
	// cannot sign return a direct link.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// KeyFromURI maps a storage URI such as s3://project/exp1/tp1/A01.tif to the
// object key exp1/tp1/A01.tif. The URI host names the project or bucket and
// is not part of the key.
func KeyFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", ErrInvalidKey.Wrap(err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", ErrInvalidKey.New("uri %q has no path", uri)
	}
	return key, nil
}

// CloneMetadata copies user metadata so callers cannot alias stored maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
