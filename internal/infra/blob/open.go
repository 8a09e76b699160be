// Package blob selects the object storage backend images are read from.
package blob

import (
	"context"

	"labcatalog/internal/infra/blob/core"
	"labcatalog/internal/infra/blob/fs"
	"labcatalog/internal/infra/blob/memory"
	"labcatalog/internal/infra/blob/s3"
)

// Options configures Open. Only the fields of the selected driver are read.
type Options struct {
	Driver  core.Driver
	FSRoot  string
	BaseURL string
	S3      s3.Config
}

// Open returns the store named by opts.Driver. The filesystem driver is the
// default.
func Open(ctx context.Context, opts Options) (core.Store, error) {
	switch opts.Driver {
	case "", core.DriverFilesystem:
		return fs.New(opts.FSRoot, opts.BaseURL)
	case core.DriverS3:
		return s3.New(ctx, opts.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, core.Error.New("unknown blob driver %q", opts.Driver)
	}
}
