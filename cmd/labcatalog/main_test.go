package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"labcatalog/internal/config"
	"labcatalog/internal/demo"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.Auth.Token = "secret"
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "labcatalog "), out)
	require.Contains(t, out, "go: ")
}

func TestSeedCommand(t *testing.T) {
	t.Setenv("LABCATALOG_STORAGE_DRIVER", "memory")
	t.Setenv("LABCATALOG_BLOB_DRIVER", "memory")
	t.Setenv("LABCATALOG_METRICS_BACKEND", "none")
	t.Setenv("LABCATALOG_LOG_LEVEL", "error")

	out, err := execute(t, "seed")
	require.NoError(t, err)
	var sum demo.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum), out)
	require.Equal(t, 3, sum.Sections)
	require.Equal(t, 2*demo.ImageCount(), sum.Items)
}

func TestConfigErrorsStopCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labcatalog.toml")
	require.NoError(t, os.WriteFile(path, []byte("[http]\nport = 8080\n"), 0o600))

	_, err := execute(t, "--config", path, "seed")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http.port")
}

func TestAppHandler(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	log := zaptest.NewLogger(t)
	a, err := openApp(ctx, cfg, log, appOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.close()) })
	_, err = demo.Seed(ctx, a.svc)
	require.NoError(t, err)

	h, err := a.handler(cfg, log)
	require.NoError(t, err)
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	require.Equal(t, http.StatusOK, get("/healthz").Code)

	w := get("/api/v1/items?tags=control&chan=1&page_size=5")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page map[string]int
	require.NoError(t, json.Unmarshal([]byte(w.Header().Get("X-Pagination")), &page))
	require.Equal(t, 48, page["total"])

	w = get("/ui/plates")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), demo.PlateName)

	w = get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "labcatalog_http_requests_total")
	require.Contains(t, w.Body.String(), "go_goroutines")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tags", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/tags", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAppTracesOperations(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Metrics.Backend = "none"
	var trace bytes.Buffer
	a, err := openApp(ctx, cfg, zaptest.NewLogger(t), appOptions{trace: &trace})
	require.NoError(t, err)
	_, err = a.svc.ListPlates(ctx)
	require.NoError(t, err)
	require.Contains(t, trace.String(), "list_plates")
}

func TestServerRunStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := config.Default().HTTP
	cfg.ShutdownTimeout = time.Second
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	srv := newServer(cfg, handler, listener, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
