package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/blobtest"
	"labcatalog/internal/infra/blob/core"
)

func TestStoreContract(t *testing.T) {
	s, err := New(t.TempDir(), "")
	require.NoError(t, err)
	require.Equal(t, core.DriverFilesystem, s.Driver())
	blobtest.Run(t, s)
}

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", " ", "../escape", "/abs", "..", "a/../../b"} {
		_, err := sanitizeKey(bad)
		require.True(t, core.ErrInvalidKey.Has(err), "key %q", bad)
	}
	k, err := sanitizeKey("a//b/./c.tif")
	require.NoError(t, err)
	require.Equal(t, "a/b/c.tif", k)
}

func TestListSeesFilesWrittenOutsideTheStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "exp1", "tp1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "exp1", "tp1", "C03_s2_w1.png"), []byte("img"), 0o644))

	s, err := New(root, "")
	require.NoError(t, err)
	infos, err := s.List(context.Background(), "exp1/tp1/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "C03_s2_w1.png", infos[0].Name())
	require.Equal(t, "image/png", infos[0].ContentType)

	infos, err = s.List(context.Background(), "missing/dir/")
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestURLUsesBaseWhenConfigured(t *testing.T) {
	s, err := New(t.TempDir(), "http://localhost:8080/ui/images/")
	require.NoError(t, err)
	u, err := s.URL(context.Background(), "exp1/tp1/A01.tif", 0)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/ui/images/exp1/tp1/A01.tif", u)

	plain, err := New(t.TempDir(), "")
	require.NoError(t, err)
	u, err = plain.URL(context.Background(), "a.tif", 0)
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.ToSlash(filepath.Join(plain.Root(), "a.tif")), u)
}
