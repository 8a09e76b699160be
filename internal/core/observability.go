package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MetricsRecorder receives the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

// AuditStatus is the outcome recorded for a mutating operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating operation and who asked for it.
type AuditEntry struct {
	Operation  string
	Entity     EntityType
	EntityID   string
	Actor      string
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	OccurredAt time.Time
}

// AuditRecorder receives an entry for every mutating operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type actorKey struct{}

// WithActor returns a context carrying the identity of the caller. Audit
// entries record it.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller identity stored by WithActor.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

type serviceOptions struct {
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	clock     func() time.Time
	urlExpiry time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  zap.NewNop(),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

// WithLogger sets the service logger. Nil is ignored.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink. Nil is ignored.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the span factory. Nil is ignored.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink for mutations. Nil is ignored.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithClock overrides the clock used for audit timestamps and default time
// point times.
func WithClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithURLExpiry sets the lifetime of presigned item URLs.
func WithURLExpiry(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.urlExpiry = d
	}
}
