package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"labcatalog/internal/config"
	"labcatalog/internal/core"
	blobcore "labcatalog/internal/infra/blob/core"
	"labcatalog/internal/ingest"
)

func noEnv(string) (string, bool) { return "", false }

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labcatalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.LoadWithEnv("", noEnv)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
	require.Equal(t, 20, cfg.HTTP.ItemsPerPage)
	require.Equal(t, core.StorageSQLite, cfg.StorageOptions().Driver)
	require.Equal(t, blobcore.DriverFilesystem, cfg.BlobOptions().Driver)
	require.Equal(t, ingest.DefaultPattern, cfg.IngestConfig().Pattern)
	require.Equal(t, blobcore.DefaultURLExpiry, cfg.Blob.URLExpiry)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
pages_dir = "docs/pages"

[http]
addr = "127.0.0.1:9000"
items_per_page = 50
read_timeout = "3s"

[storage]
driver = "postgres"
postgres_dsn = "postgres://from-file"

[blob]
driver = "s3"
url_expiry = "5m"

[blob.s3]
bucket = "plates"
region = "eu-west-1"
path_style = true

[auth]
token = "file-token"
trust_proxy_headers = true
admin_group = "lab-admins"
`)
	cfg, err := config.LoadWithEnv(path, env(map[string]string{
		"LABCATALOG_POSTGRES_DSN":    "postgres://from-env",
		"LABCATALOG_AUTH_TOKEN":      "env-token",
		"LABCATALOG_MAX_PAGE_SIZE":   "200",
		"LABCATALOG_LOG_DEVELOPMENT": "true",
		"LABCATALOG_INGEST_SCHEME":   " s3 ",
	}))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	require.Equal(t, 50, cfg.HTTP.ItemsPerPage)
	require.Equal(t, 200, cfg.HTTP.MaxPageSize)
	require.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 60*time.Second, cfg.HTTP.WriteTimeout)
	require.Equal(t, "postgres://from-env", cfg.StorageOptions().PostgresDSN)
	require.Equal(t, core.StoragePostgres, cfg.StorageOptions().Driver)
	require.Equal(t, 5*time.Minute, cfg.Blob.URLExpiry)
	require.Equal(t, "plates", cfg.BlobOptions().S3.Bucket)
	require.True(t, cfg.BlobOptions().S3.PathStyle)
	require.Equal(t, "env-token", cfg.Auth.Token)
	require.Equal(t, "lab-admins", cfg.Auth.AdminGroup)
	require.True(t, cfg.Log.Development)
	require.Equal(t, "s3", cfg.IngestConfig().Scheme)
	require.Equal(t, "docs/pages", cfg.PagesDir)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[http]\nport = 80\n")
	_, err := config.LoadWithEnv(path, noEnv)
	require.Error(t, err)
	require.True(t, config.Error.Has(err))
	require.Contains(t, err.Error(), "http.port")
}

func TestLoadRejectsBadFile(t *testing.T) {
	_, err := config.LoadWithEnv(writeConfig(t, "[http\n"), noEnv)
	require.True(t, config.Error.Has(err))

	_, err = config.LoadWithEnv(filepath.Join(t.TempDir(), "missing.toml"), noEnv)
	require.True(t, config.Error.Has(err))
}

func TestLoadRejectsBadEnv(t *testing.T) {
	_, err := config.LoadWithEnv("", env(map[string]string{"LABCATALOG_ITEMS_PER_PAGE": "many"}))
	require.True(t, config.Error.Has(err))
	require.Contains(t, err.Error(), "LABCATALOG_ITEMS_PER_PAGE")

	_, err = config.LoadWithEnv("", env(map[string]string{"LABCATALOG_BLOB_URL_EXPIRY": "soon"}))
	require.True(t, config.Error.Has(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"page size", func(c *config.Config) { c.HTTP.ItemsPerPage = 0 }, "items_per_page"},
		{"max page", func(c *config.Config) { c.HTTP.MaxPageSize = 5 }, "max_page_size"},
		{"storage", func(c *config.Config) { c.Storage.Driver = "mysql" }, "unknown storage driver"},
		{"postgres dsn", func(c *config.Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"},
		{"blob", func(c *config.Config) { c.Blob.Driver = "ftp" }, "unknown blob driver"},
		{"bucket", func(c *config.Config) { c.Blob.Driver = "s3" }, "bucket"},
		{"scheme", func(c *config.Config) { c.Ingest.Scheme = "" }, "scheme"},
		{"metrics", func(c *config.Config) { c.Metrics.Backend = "statsd" }, "metrics backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	cfg := config.Default()
	cfg.Metrics.Backend = "none"
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	require.NoError(t, cfg.Validate())
}
