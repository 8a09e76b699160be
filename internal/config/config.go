// Package config loads labcatalog settings. Values start from Default, are
// overlaid by an optional TOML file and finally by LABCATALOG_* environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/zeebo/errs"

	"labcatalog/internal/auth"
	"labcatalog/internal/core"
	"labcatalog/internal/infra/blob"
	blobcore "labcatalog/internal/infra/blob/core"
	"labcatalog/internal/infra/blob/s3"
	"labcatalog/internal/ingest"
)

// Error is the error class for configuration problems.
var Error = errs.Class("config")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LABCATALOG_"

// Config is the complete server configuration.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Storage StorageConfig `toml:"storage"`
	Blob    BlobConfig    `toml:"blob"`
	Ingest  IngestConfig  `toml:"ingest"`
	Auth    auth.Config   `toml:"auth"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	// PagesDir holds the markdown pages served under /ui/pages.
	PagesDir string `toml:"pages_dir"`
}

// HTTPConfig configures the listener and item pagination.
type HTTPConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	ItemsPerPage    int           `toml:"items_per_page"`
	MaxPageSize     int           `toml:"max_page_size"`
}

// StorageConfig selects the catalog database.
type StorageConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// BlobConfig selects where time point images live.
type BlobConfig struct {
	Driver    string        `toml:"driver"`
	FSRoot    string        `toml:"fs_root"`
	BaseURL   string        `toml:"base_url"`
	URLExpiry time.Duration `toml:"url_expiry"`
	S3        S3Config      `toml:"s3"`
}

// S3Config mirrors s3.Config with TOML names.
type S3Config struct {
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
	PathStyle       bool   `toml:"path_style"`
}

// IngestConfig controls how time point folders are read.
type IngestConfig struct {
	Scheme  string `toml:"scheme"`
	Pattern string `toml:"pattern"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
	// Encoding is "console" or "json".
	Encoding string `toml:"encoding"`
	// Output is stdout, stderr or a file name.
	Output string `toml:"output"`
}

// MetricsConfig selects the service operation metrics backend: "prometheus",
// "expvar" or "none".
type MetricsConfig struct {
	Backend string `toml:"backend"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			ItemsPerPage:    20,
			MaxPageSize:     1000,
		},
		Storage: StorageConfig{Driver: string(core.StorageSQLite), SQLitePath: "labcatalog.db"},
		Blob: BlobConfig{
			Driver:    string(blobcore.DriverFilesystem),
			FSRoot:    "data",
			URLExpiry: blobcore.DefaultURLExpiry,
		},
		Ingest:  IngestConfig{Scheme: "file", Pattern: ingest.DefaultPattern},
		Log:     LogConfig{Level: "info", Encoding: "json", Output: "stderr"},
		Metrics: MetricsConfig{Backend: "prometheus"},
	}
}

// Load builds the configuration from path, which may be empty, and the
// process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, Error.New("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, Error.New("unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envVar struct {
	name string
	set  func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func (c *Config) envVars() []envVar {
	return []envVar{
		{"HTTP_ADDR", str(&c.HTTP.Addr)},
		{"HTTP_READ_TIMEOUT", duration(&c.HTTP.ReadTimeout)},
		{"HTTP_WRITE_TIMEOUT", duration(&c.HTTP.WriteTimeout)},
		{"HTTP_SHUTDOWN_TIMEOUT", duration(&c.HTTP.ShutdownTimeout)},
		{"ITEMS_PER_PAGE", integer(&c.HTTP.ItemsPerPage)},
		{"MAX_PAGE_SIZE", integer(&c.HTTP.MaxPageSize)},
		{"STORAGE_DRIVER", str(&c.Storage.Driver)},
		{"SQLITE_PATH", str(&c.Storage.SQLitePath)},
		{"POSTGRES_DSN", str(&c.Storage.PostgresDSN)},
		{"BLOB_DRIVER", str(&c.Blob.Driver)},
		{"BLOB_FS_ROOT", str(&c.Blob.FSRoot)},
		{"BLOB_BASE_URL", str(&c.Blob.BaseURL)},
		{"BLOB_URL_EXPIRY", duration(&c.Blob.URLExpiry)},
		{"BLOB_S3_REGION", str(&c.Blob.S3.Region)},
		{"BLOB_S3_BUCKET", str(&c.Blob.S3.Bucket)},
		{"BLOB_S3_ENDPOINT", str(&c.Blob.S3.Endpoint)},
		{"BLOB_S3_ACCESS_KEY_ID", str(&c.Blob.S3.AccessKeyID)},
		{"BLOB_S3_SECRET_ACCESS_KEY", str(&c.Blob.S3.SecretAccessKey)},
		{"BLOB_S3_SESSION_TOKEN", str(&c.Blob.S3.SessionToken)},
		{"BLOB_S3_PATH_STYLE", boolean(&c.Blob.S3.PathStyle)},
		{"INGEST_SCHEME", str(&c.Ingest.Scheme)},
		{"INGEST_PATTERN", str(&c.Ingest.Pattern)},
		{"AUTH_TOKEN", str(&c.Auth.Token)},
		{"AUTH_TRUST_PROXY_HEADERS", boolean(&c.Auth.TrustProxyHeaders)},
		{"AUTH_ADMIN_GROUP", str(&c.Auth.AdminGroup)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_DEVELOPMENT", boolean(&c.Log.Development)},
		{"LOG_ENCODING", str(&c.Log.Encoding)},
		{"LOG_OUTPUT", str(&c.Log.Output)},
		{"METRICS_BACKEND", str(&c.Metrics.Backend)},
		{"PAGES_DIR", str(&c.PagesDir)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, v := range c.envVars() {
		raw, ok := lookup(EnvPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(strings.TrimSpace(raw)); err != nil {
			return Error.New("%s%s: %w", EnvPrefix, v.name, err)
		}
	}
	return nil
}

// Validate reports every inconsistent setting.
func (c Config) Validate() error {
	var group errs.Group
	if c.HTTP.ItemsPerPage < 1 {
		group.Add(Error.New("items_per_page must be positive"))
	}
	if c.HTTP.MaxPageSize < c.HTTP.ItemsPerPage {
		group.Add(Error.New("max_page_size %d is below items_per_page %d", c.HTTP.MaxPageSize, c.HTTP.ItemsPerPage))
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			group.Add(Error.New("postgres driver requires postgres_dsn"))
		}
	default:
		group.Add(Error.New("unknown storage driver %q", c.Storage.Driver))
	}
	switch blobcore.Driver(c.Blob.Driver) {
	case blobcore.DriverFilesystem, blobcore.DriverMemory:
	case blobcore.DriverS3:
		if c.Blob.S3.Bucket == "" {
			group.Add(Error.New("s3 blob driver requires a bucket"))
		}
	default:
		group.Add(Error.New("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Ingest.Scheme == "" {
		group.Add(Error.New("ingest scheme required"))
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		group.Add(Error.New("unknown log encoding %q", c.Log.Encoding))
	}
	switch c.Metrics.Backend {
	case "prometheus", "expvar", "none":
	default:
		group.Add(Error.New("unknown metrics backend %q", c.Metrics.Backend))
	}
	return group.Err()
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions converts the blob section for blob.Open.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver:  blobcore.Driver(c.Blob.Driver),
		FSRoot:  c.Blob.FSRoot,
		BaseURL: c.Blob.BaseURL,
		S3: s3.Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			SessionToken:    c.Blob.S3.SessionToken,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// IngestConfig converts the ingest section for ingest.NewReader.
func (c Config) IngestConfig() ingest.Config {
	return ingest.Config{Scheme: c.Ingest.Scheme, Pattern: c.Ingest.Pattern}
}
