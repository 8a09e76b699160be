package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/core"
	"labcatalog/internal/infra/blob/memory"
	"labcatalog/internal/infra/blob/s3"
	"labcatalog/pkg/domain"
)

func put(t *testing.T, store core.Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, err := store.Put(context.Background(), k, strings.NewReader(k), core.PutOptions{})
		require.NoError(t, err)
	}
}

func TestCheckURI(t *testing.T) {
	r, err := NewReader(memory.New(), Config{Scheme: "scheme"}, nil)
	require.NoError(t, err)

	require.NoError(t, r.CheckURI("scheme://project/exp1/tp1/"))
	for _, bad := range []string{"badscheme://project/exp1/tp1/", "scheme://project/exp1/tp1", "scheme://project/", "scheme://%zz/"} {
		require.True(t, domain.ErrValidation.Has(r.CheckURI(bad)), bad)
	}
}

func TestReadMatchesPatternAndSkipsOthers(t *testing.T) {
	store := memory.New()
	put(t, store,
		"exp1/tp1/A01_s1_w1.tif",
		"exp1/tp1/A01_s1_w2.tif",
		"exp1/tp1/c12_s3_w1.tif",
		"exp1/tp1/thumbs.db",
		"exp1/tp2/B01_s1_w1.tif",
	)
	r, err := NewReader(store, Config{Scheme: "s3"}, nil)
	require.NoError(t, err)

	files, err := r.Read(context.Background(), "s3://project/exp1/tp1/")
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, File{URI: "s3://project/exp1/tp1/A01_s1_w2.tif", Key: "exp1/tp1/A01_s1_w2.tif", Row: "A", Col: 1, Site: 1, Chan: 2}, files[1])
	require.Equal(t, "C", files[2].Row)
	require.Equal(t, 12, files[2].Col)
	require.Equal(t, 3, files[2].Site)

	item := files[0].Item("plate", "tp")
	require.Equal(t, "plate", item.PlateID)
	require.Equal(t, "tp", item.TimePointID)
	require.Equal(t, files[0].URI, item.URI)

	files, err = r.Read(context.Background(), "s3://project/exp9/")
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestReadFromS3(t *testing.T) {
	store := s3.NewMockForTests()
	put(t, store, "exp1/tp1/A01_s1_w1.tif", "exp1/tp1/A02_s1_w1.tif", "exp1/tp1/A03_s1_w1.tif")
	r, err := NewReader(store, Config{Scheme: "s3"}, nil)
	require.NoError(t, err)
	files, err := r.Read(context.Background(), "s3://mock-bucket/exp1/tp1/")
	require.NoError(t, err)
	require.Len(t, files, 3)
}

func TestCustomPatternDefaultsSiteAndChan(t *testing.T) {
	r, err := NewReader(memory.New(), Config{Scheme: "file", Pattern: `^well-(?P<row>[A-H])-(?P<col>\d+)\.png$`}, nil)
	require.NoError(t, err)
	f, ok := r.Parse("well-D-7.png")
	require.True(t, ok)
	require.Equal(t, File{Row: "D", Col: 7, Site: 1, Chan: 1}, f)
	_, ok = r.Parse("well-Z-7.png")
	require.False(t, ok)
}

func TestNewReaderValidatesConfig(t *testing.T) {
	_, err := NewReader(nil, Config{Scheme: "s3"}, nil)
	require.True(t, Error.Has(err))
	_, err = NewReader(memory.New(), Config{}, nil)
	require.True(t, Error.Has(err))
	_, err = NewReader(memory.New(), Config{Scheme: "s3", Pattern: "("}, nil)
	require.True(t, Error.Has(err))
	_, err = NewReader(memory.New(), Config{Scheme: "s3", Pattern: `(?P<row>[A-H])`}, nil)
	require.True(t, Error.Has(err))
}
