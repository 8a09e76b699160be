package core

import (
	"context"
	"encoding/json"
	"expvar"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusMetricsRecorder counts and times service operations.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labcatalog",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labcatalog",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations} {
		if err := reg.Register(c); err != nil {
			return nil, Error.New("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.operations.WithLabelValues(operation, statusLabel(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return string(AuditStatusSuccess)
	}
	return string(AuditStatusError)
}

// ExpvarMetricsRecorder keeps per-operation totals for deployments that
// scrape /debug/vars instead of Prometheus.
type ExpvarMetricsRecorder struct {
	mu      sync.Mutex
	totalMS map[string]float64
	counts  map[string]map[string]int64
}

// ExpvarMetricsSnapshot is the published view of an ExpvarMetricsRecorder.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. expvar panics on
// duplicate names, so callers publish once per process.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	r := &ExpvarMetricsRecorder{totalMS: make(map[string]float64), counts: make(map[string]map[string]int64)}
	if name != "" {
		expvar.Publish(name, expvar.Func(func() any { return r.Snapshot() }))
	}
	return r
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalMS[operation] += float64(duration) / float64(time.Millisecond)
	if r.counts[operation] == nil {
		r.counts[operation] = make(map[string]int64, 2)
	}
	r.counts[operation][statusLabel(success)]++
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64, len(r.totalMS)),
		Results:     make(map[string]map[string]int64, len(r.counts)),
	}
	for op, ms := range r.totalMS {
		snap.DurationsMS[op] = ms
	}
	for op, byStatus := range r.counts {
		cpy := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			cpy[status] = n
		}
		snap.Results[op] = cpy
	}
	return snap
}

// ZapAuditRecorder writes audit entries to a logger. Failed mutations are
// logged at warn level.
type ZapAuditRecorder struct {
	logger *zap.Logger
}

// NewZapAuditRecorder returns a recorder logging under the "audit" name.
func NewZapAuditRecorder(logger *zap.Logger) *ZapAuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditRecorder{logger: logger.Named("audit")}
}

// Record implements AuditRecorder.
func (r *ZapAuditRecorder) Record(_ context.Context, e AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.String("entity", string(e.Entity)),
		zap.String("entity_id", e.EntityID),
		zap.String("actor", e.Actor),
		zap.Duration("duration", e.Duration),
		zap.Time("at", e.OccurredAt),
	}
	if e.Status == AuditStatusError {
		r.logger.Warn("admin action failed", append(fields, zap.String("error", e.Error))...)
		return
	}
	r.logger.Info("admin action", fields...)
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// JSONTraceTracer writes spans as JSON lines and keeps them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w; a nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     statusLabel(err == nil),
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
