package core

import (
	"context"
	"time"

	"tasklist/internal/cache"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuditStatus is the outcome recorded for a settled operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one settled mutation.
type AuditEntry struct {
	Operation string
	Kind      MutationKind
	State     MutationState
	Key       cache.Key
	RecordID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry per settled mutation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes durable-write outcomes and timings.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended once with the operation's error.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around durable writes and loads.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type coordinatorOptions struct {
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	tempIDs func() string
}

// Option customises a Coordinator.
type Option func(*coordinatorOptions)

func defaultOptions() coordinatorOptions {
	return coordinatorOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		tempIDs: NewTempIDGenerator(),
	}
}

// WithClock overrides the time source used for speculative timestamps.
func WithClock(clock Clock) Option {
	return func(o *coordinatorOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger Logger) Option {
	return func(o *coordinatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink for settled mutations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(o *coordinatorOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *coordinatorOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *coordinatorOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithTempIDs overrides the temporary id generator.
func WithTempIDs(gen func() string) Option {
	return func(o *coordinatorOptions) {
		if gen != nil {
			o.tempIDs = gen
		}
	}
}
