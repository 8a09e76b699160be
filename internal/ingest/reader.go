// Package ingest discovers the images of a new time point in object storage
// and turns their filenames into item coordinates.
package ingest

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"labcatalog/internal/infra/blob/core"
	"labcatalog/pkg/domain"
)

// Error wraps storage failures while listing a time point.
var Error = errs.Class("ingest")

// DefaultPattern matches names like B03_s2_w1.tif.
const DefaultPattern = `^(?P<row>[A-Pa-p])(?P<col>\d{2})_s(?P<site>\d+)_w(?P<chan>\d+)`

// Config selects the accepted URI scheme and the filename pattern.
type Config struct {
	Scheme  string
	Pattern string
}

// File is one image found under a time point URI.
type File struct {
	URI  string
	Key  string
	Row  string
	Col  int
	Site int
	Chan int
}

// Item returns the catalog item for f.
func (f File) Item(plateID, timePointID string) domain.Item {
	return domain.Item{URI: f.URI, Row: f.Row, Col: f.Col, Site: f.Site, Chan: f.Chan, PlateID: plateID, TimePointID: timePointID}
}

// Reader lists time point folders in a blob store.
type Reader struct {
	store   core.Store
	scheme  string
	pattern *regexp.Regexp
	groups  map[string]int
	logger  *zap.Logger
}

// NewReader compiles cfg.Pattern, which must name the row and col groups.
// The site and chan groups are optional and default to 1.
func NewReader(store core.Store, cfg Config, logger *zap.Logger) (*Reader, error) {
	if store == nil {
		return nil, Error.New("blob store required")
	}
	if cfg.Scheme == "" {
		return nil, Error.New("uri scheme required")
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, Error.New("filename pattern: %w", err)
	}
	groups := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = i
		}
	}
	for _, required := range []string{"row", "col"} {
		if _, ok := groups[required]; !ok {
			return nil, Error.New("filename pattern lacks group %q", required)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: store, scheme: cfg.Scheme, pattern: re, groups: groups, logger: logger}, nil
}

// Scheme returns the accepted URI scheme.
func (r *Reader) Scheme() string { return r.scheme }

// Store returns the backing blob store.
func (r *Reader) Store() core.Store { return r.store }

// CheckURI validates a time point URI: configured scheme, a path, and a
// trailing slash marking it as a folder.
func (r *Reader) CheckURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return domain.ErrValidation.New("uri %q: %w", uri, err)
	}
	if u.Scheme != r.scheme {
		return domain.ErrValidation.New("uri %q: scheme must be %q", uri, r.scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		return domain.ErrValidation.New("uri %q must end with /", uri)
	}
	if _, err := core.KeyFromURI(uri); err != nil {
		return domain.ErrValidation.Wrap(err)
	}
	return nil
}

// Read lists the objects below uri and returns the files whose name matches
// the pattern, in key order. Other files are skipped.
func (r *Reader) Read(ctx context.Context, uri string) ([]File, error) {
	if err := r.CheckURI(uri); err != nil {
		return nil, err
	}
	prefix, _ := core.KeyFromURI(uri)
	infos, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	files := make([]File, 0, len(infos))
	for _, info := range infos {
		f, ok := r.Parse(info.Name())
		if !ok {
			r.logger.Debug("skipping unmatched file", zap.String("key", info.Key))
			continue
		}
		f.Key = info.Key
		f.URI = uri + strings.TrimPrefix(info.Key, prefix)
		files = append(files, f)
	}
	r.logger.Info("time point listed", zap.String("uri", uri), zap.Int("objects", len(infos)), zap.Int("items", len(files)))
	return files, nil
}

// Parse extracts well coordinates from a filename.
func (r *Reader) Parse(name string) (File, bool) {
	m := r.pattern.FindStringSubmatch(name)
	if m == nil {
		return File{}, false
	}
	f := File{Row: strings.ToUpper(m[r.groups["row"]]), Site: 1, Chan: 1}
	var err error
	if f.Col, err = strconv.Atoi(m[r.groups["col"]]); err != nil {
		return File{}, false
	}
	for name, dst := range map[string]*int{"site": &f.Site, "chan": &f.Chan} {
		i, ok := r.groups[name]
		if !ok || m[i] == "" {
			continue
		}
		if *dst, err = strconv.Atoi(m[i]); err != nil {
			return File{}, false
		}
	}
	return f, true
}
