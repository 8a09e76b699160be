package main

import (
	"context"
	"expvar"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"labcatalog/internal/adapters/httpapi"
	"labcatalog/internal/adapters/web"
	"labcatalog/internal/auth"
	"labcatalog/internal/config"
	"labcatalog/internal/core"
	"labcatalog/internal/infra/blob"
	"labcatalog/internal/ingest"
	"labcatalog/internal/observability"
)

// app is the assembled catalog: service plus the stores it owns.
type app struct {
	svc      *core.Service
	registry *prometheus.Registry
	close    func() error
}

// appOptions carries settings that only come from command flags.
type appOptions struct {
	// trace receives one JSON line per service operation when set.
	trace io.Writer
}

func openApp(ctx context.Context, cfg config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	store, closeStore, err := core.OpenPersistentStore(cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.BlobOptions())
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	reader, err := ingest.NewReader(blobs, cfg.IngestConfig(), log.Named("ingest"))
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	svcOpts := []core.ServiceOption{
		core.WithLogger(log.Named("service")),
		core.WithAuditRecorder(core.NewZapAuditRecorder(log)),
		core.WithURLExpiry(cfg.Blob.URLExpiry),
	}
	a := &app{close: closeStore}
	switch cfg.Metrics.Backend {
	case "prometheus":
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(a.registry)
		if err != nil {
			_ = closeStore()
			return nil, err
		}
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
	case "expvar":
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("labcatalog")))
	}
	if opts.trace != nil {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(opts.trace)))
	}
	a.svc = core.NewService(store, reader, svcOpts...)
	return a, nil
}

// handler routes the REST API, the UI and the operational endpoints.
func (a *app) handler(cfg config.Config, log *zap.Logger) (http.Handler, error) {
	apiOpts := httpapi.Options{
		ItemsPerPage: cfg.HTTP.ItemsPerPage,
		MaxPageSize:  cfg.HTTP.MaxPageSize,
		Logger:       log.Named("http"),
		Auth:         auth.New(cfg.Auth, log.Named("auth")),
	}
	if a.registry != nil {
		metrics, err := observability.NewHTTPMetrics(a.registry)
		if err != nil {
			return nil, err
		}
		apiOpts.Metrics, apiOpts.Gatherer = metrics, a.registry
	}

	root := mux.NewRouter()
	httpapi.New(a.svc, apiOpts).Register(root)
	ui, err := web.New(a.svc, web.Options{PagesDir: cfg.PagesDir, Logger: log.Named("web")})
	if err != nil {
		return nil, err
	}
	ui.Register(root)
	if cfg.Metrics.Backend == "expvar" {
		root.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	}
	return root, nil
}
