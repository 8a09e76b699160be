package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/blobtest"
	"labcatalog/internal/infra/blob/core"
)

func TestStoreContract(t *testing.T) {
	blobtest.Run(t, New())
}

func TestURLRequiresObject(t *testing.T) {
	s := New()
	require.Equal(t, core.DriverMemory, s.Driver())
	_, err := s.URL(context.Background(), "missing.tif", 0)
	require.True(t, core.ErrNotFound.Has(err))
	_, err = s.Put(context.Background(), " ", strings.NewReader("x"), core.PutOptions{})
	require.True(t, core.ErrInvalidKey.Has(err))
}

func TestMetadataIsCopied(t *testing.T) {
	s := New()
	md := map[string]string{"plate": "P1"}
	_, err := s.Put(context.Background(), "a.tif", strings.NewReader("x"), core.PutOptions{Metadata: md})
	require.NoError(t, err)
	md["plate"] = "changed"
	head, err := s.Head(context.Background(), "a.tif")
	require.NoError(t, err)
	require.Equal(t, "P1", head.Metadata["plate"])
	require.NotEmpty(t, head.ETag)
}
