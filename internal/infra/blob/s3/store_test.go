package s3

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/blobtest"
	"labcatalog/internal/infra/blob/core"
)

func TestStoreContract(t *testing.T) {
	s := NewMockForTests()
	require.Equal(t, core.DriverS3, s.Driver())
	require.Equal(t, "mock-bucket", s.Bucket())
	blobtest.Run(t, s)
}

func TestListFollowsContinuation(t *testing.T) {
	s := NewMockForTests()
	ctx := context.Background()
	for _, k := range []string{"p/a", "p/b", "p/c", "p/d", "p/e", "q/a"} {
		_, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{})
		require.NoError(t, err)
	}
	infos, err := s.List(ctx, "p/")
	require.NoError(t, err)
	require.Len(t, infos, 5)
	require.Equal(t, "p/e", infos[4].Key)
}

func TestPresignedURLCarriesExpiry(t *testing.T) {
	s := NewMockForTests()
	u, err := s.URL(context.Background(), "exp1/A01.tif", 0)
	require.NoError(t, err)
	require.Contains(t, u, "X-Amz-Expires=900")
	require.Contains(t, u, "/mock-bucket/exp1/A01.tif")
}

func TestNewValidatesBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.True(t, core.Error.Has(err))

	s, err := New(context.Background(), Config{Bucket: "images", Endpoint: "http://minio:9000", PathStyle: true,
		AccessKeyID: "AKIA", SecretAccessKey: "SECRET"})
	require.NoError(t, err)
	require.Equal(t, "images", s.Bucket())
}

func TestDecodeChunked(t *testing.T) {
	_, ok := decodeChunked([]byte("not-chunked"))
	require.False(t, ok)
	_, ok = decodeChunked([]byte("5\r\nabc\r\n0\r\n"))
	require.False(t, ok)
	b, ok := decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n0\r\n\r\n"))
	require.True(t, ok)
	require.Equal(t, "hello", string(b))
}
