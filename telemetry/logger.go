package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/reaper/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// NewTestLogger returns a logger that discards everything, for tests.
func NewTestLogger() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogTermination emits the termination event marker line. This is the
// single emission point for the notifier's log subscription: the event's
// Format output IS the message, so downstream filters on the marker
// substring keep working regardless of what structured fields are added
// around it.
func (l *Logger) LogTermination(ctx context.Context, event types.Event) {
	l.WithContext(ctx).Warn().
		Str("instance_id", event.InstanceID).
		Str("reason", string(event.Reason)).
		Bool("dry_run", event.DryRun).
		Time("decided_at", event.At).
		Msg(event.Format())
}

// LogEnforcementOutcome logs how a watcher invocation ended.
func (l *Logger) LogEnforcementOutcome(ctx context.Context, instanceID, state string, err error) {
	logger := l.WithContext(ctx)
	if err != nil {
		logger.Error().
			Err(err).
			Str("instance_id", instanceID).
			Str("state", state).
			Msg("enforcement failed")
		return
	}
	logger.Info().
		Str("instance_id", instanceID).
		Str("state", state).
		Msg("enforcement finished")
}

// LogSweepSummary logs the completion line of a sweep run.
func (l *Logger) LogSweepSummary(ctx context.Context, live bool, terminated, anomalous, skipped, failed int) {
	l.WithContext(ctx).Info().
		Bool("live_mode", live).
		Int("terminated", terminated).
		Int("anomalous", anomalous).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("sweep completed")
}
