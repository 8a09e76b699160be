// Package blobtest holds the behaviour every core.Store backend must share.
package blobtest

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/core"
)

// Run exercises store against the core.Store contract. The store must be
// empty.
func Run(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put get head", func(t *testing.T) {
		info, err := store.Put(ctx, "exp1/tp1/A01_s1_w1.tif", strings.NewReader("pixels"), core.PutOptions{ContentType: "image/tiff"})
		require.NoError(t, err)
		require.Equal(t, "exp1/tp1/A01_s1_w1.tif", info.Key)
		require.Equal(t, "A01_s1_w1.tif", info.Name())
		require.EqualValues(t, 6, info.Size)

		got, rc, err := store.Get(ctx, info.Key)
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, "pixels", string(body))
		require.Equal(t, info.Key, got.Key)

		head, err := store.Head(ctx, info.Key)
		require.NoError(t, err)
		require.EqualValues(t, 6, head.Size)
	})

	t.Run("put is create only", func(t *testing.T) {
		_, err := store.Put(ctx, "exp1/tp1/A01_s1_w1.tif", strings.NewReader("again"), core.PutOptions{})
		require.Error(t, err)
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := store.Head(ctx, "exp1/none.tif")
		require.True(t, core.ErrNotFound.Has(err), "got %v", err)
		_, _, err = store.Get(ctx, "exp1/none.tif")
		require.True(t, core.ErrNotFound.Has(err), "got %v", err)
	})

	t.Run("list by prefix", func(t *testing.T) {
		for _, key := range []string{"exp1/tp1/B02_s1_w1.tif", "exp1/tp1/A02_s1_w1.tif", "exp1/tp2/A01_s1_w1.tif"} {
			_, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{})
			require.NoError(t, err)
		}
		infos, err := store.List(ctx, "exp1/tp1/")
		require.NoError(t, err)
		var keys []string
		for _, i := range infos {
			keys = append(keys, i.Key)
		}
		require.Equal(t, []string{"exp1/tp1/A01_s1_w1.tif", "exp1/tp1/A02_s1_w1.tif", "exp1/tp1/B02_s1_w1.tif"}, keys)

		infos, err = store.List(ctx, "exp9/")
		require.NoError(t, err)
		require.Empty(t, infos)
	})

	t.Run("url", func(t *testing.T) {
		u, err := store.URL(ctx, "exp1/tp1/A01_s1_w1.tif", 0)
		require.NoError(t, err)
		require.Contains(t, u, "exp1/tp1/A01_s1_w1.tif")
	})
}
