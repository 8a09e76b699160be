package observability_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"labcatalog/internal/config"
	"labcatalog/internal/observability"
)

func TestNewLogger(t *testing.T) {
	logger, err := observability.NewLogger(config.LogConfig{Level: "debug", Encoding: "console", Development: true})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.DebugLevel))

	path := filepath.Join(t.TempDir(), "out.log")
	logger, err = observability.NewLogger(config.LogConfig{Level: "warn", Output: path})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = observability.NewLogger(config.LogConfig{Level: "chatty"})
	require.True(t, observability.Error.Has(err))
}

func router(t *testing.T, reg *prometheus.Registry, log *zap.Logger) *mux.Router {
	t.Helper()
	metrics, err := observability.NewHTTPMetrics(reg)
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Use(metrics.Middleware, observability.RequestLogger(log))
	r.HandleFunc("/plates/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler(reg))
	return r
}

func TestHTTPMetricsAndRequestLog(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, logs := observer.New(zap.DebugLevel)
	r := router(t, reg, zap.New(obs))

	for _, path := range []string{"/plates/a", "/plates/b", "/boom", "/ok"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	count, err := testutil.GatherAndCount(reg, "labcatalog_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `labcatalog_http_requests_total{code="404",method="GET",route="/plates/{id}"} 2`)
	require.Contains(t, body, `labcatalog_http_requests_total{code="500",method="GET",route="/boom"} 1`)
	require.Contains(t, body, `labcatalog_http_requests_total{code="200",method="GET",route="/ok"} 1`)

	require.Len(t, logs.FilterMessage("http request").FilterField(zap.Int("status", 500)).All(), 1)
	require.Equal(t, zap.ErrorLevel, logs.FilterField(zap.Int("status", 500)).All()[0].Level)
}

func TestNewHTTPMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewHTTPMetrics(reg)
	require.NoError(t, err)
	_, err = observability.NewHTTPMetrics(reg)
	require.True(t, observability.Error.Has(err))
}
