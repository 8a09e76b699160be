// Package fs serves plate images from a directory tree.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"labcatalog/internal/infra/blob/core"
)

// Store implements core.Store over the local filesystem. Keys are slash
// separated paths relative to the root. Files are written by acquisition
// systems, so no metadata beyond what the filesystem holds is kept.
type Store struct {
	root    string
	baseURL *url.URL
}

// New returns a filesystem-backed store rooted at root, creating it if
// needed. When baseURL is set, URL returns links below it; otherwise file://
// links are returned.
func New(root, baseURL string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, core.Error.Wrap(err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, core.Error.Wrap(err)
	}
	s := &Store{root: abs}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, core.Error.New("base url: %w", err)
		}
		s.baseURL = u
	}
	return s, nil
}

// Driver returns core.DriverFilesystem.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", core.ErrInvalidKey.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", core.ErrInvalidKey.New("absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", core.ErrInvalidKey.New("key %q escapes root", key)
		}
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *Store) info(key string, fi iofs.FileInfo) core.Info {
	return core.Info{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		ETag:         fmt.Sprintf("%x-%x", fi.ModTime().UnixNano(), fi.Size()),
		LastModified: fi.ModTime().UTC(),
	}
}

// Put writes a new file. Existing keys are not overwritten.
func (s *Store) Put(_ context.Context, key string, r io.Reader, _ core.PutOptions) (core.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.Info{}, core.Error.Wrap(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return core.Info{}, core.Error.Wrap(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return core.Info{}, core.Error.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, core.Error.Wrap(err)
	}
	// Link fails when the target exists, giving create-only semantics.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return core.Info{}, core.Error.New("blob %s already exists", key)
		}
		return core.Info{}, core.Error.Wrap(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return core.Info{}, core.Error.Wrap(err)
	}
	return s.info(key, fi), nil
}

// Get opens the file for reading.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, core.ErrNotFound.New("%s", key)
	}
	if err != nil {
		return core.Info{}, nil, core.Error.Wrap(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, core.Error.Wrap(err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return core.Info{}, nil, core.ErrNotFound.New("%s is a directory", key)
	}
	return s.info(key, fi), f, nil
}

// Head stats the file.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, iofs.ErrNotExist) || (err == nil && fi.IsDir()) {
		return core.Info{}, core.ErrNotFound.New("%s", key)
	}
	if err != nil {
		return core.Info{}, core.Error.Wrap(err)
	}
	return s.info(key, fi), nil
}

// List walks the tree below the directory part of prefix. Temporary files
// left by Put are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	start := s.root
	if dir := prefix[:strings.LastIndex(prefix, "/")+1]; dir != "" {
		path, err := s.pathFor(dir)
		if err != nil {
			return nil, err
		}
		start = path
	}
	var infos []core.Info
	err := filepath.WalkDir(start, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) && path == start {
				return iofs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, s.info(key, fi))
		return nil
	})
	if err != nil {
		return nil, core.Error.Wrap(err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// URL returns a direct link. Local files are not signed so expiry is ignored.
func (s *Store) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.baseURL != nil {
		return s.baseURL.JoinPath(k).String(), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(k)))}).String(), nil
}
