package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/infra/blob/core"
	"labcatalog/internal/infra/blob/s3"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Options{FSRoot: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, core.DriverFilesystem, store.Driver())

	store, err = Open(ctx, Options{Driver: core.DriverMemory})
	require.NoError(t, err)
	require.Equal(t, core.DriverMemory, store.Driver())

	store, err = Open(ctx, Options{Driver: core.DriverS3, S3: s3.Config{Bucket: "images", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}})
	require.NoError(t, err)
	require.Equal(t, core.DriverS3, store.Driver())

	_, err = Open(ctx, Options{Driver: "ftp"})
	require.True(t, core.Error.Has(err))
}
