package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instruments, created by InitOTEL.
var (
	InstancesScanned    metric.Int64Counter
	Terminations        metric.Int64Counter
	Anomalies           metric.Int64Counter
	EnforcementOutcomes metric.Int64Counter
	SweepDuration       metric.Float64Histogram
)

// initMetrics initializes all metric instruments
func initMetrics() error {
	var err error

	InstancesScanned, err = Meter.Int64Counter("reaper.instances.scanned.total",
		metric.WithDescription("Total number of instances evaluated by the sweep"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create instances_scanned counter: %w", err)
	}

	Terminations, err = Meter.Int64Counter("reaper.terminations.total",
		metric.WithDescription("Total number of termination decisions, by reason and mode"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create terminations counter: %w", err)
	}

	Anomalies, err = Meter.Int64Counter("reaper.anomalies.total",
		metric.WithDescription("Instances found with missing or unreadable termination_date"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create anomalies counter: %w", err)
	}

	EnforcementOutcomes, err = Meter.Int64Counter("reaper.enforcement.outcomes.total",
		metric.WithDescription("Enforcement watcher invocations by terminal state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create enforcement_outcomes counter: %w", err)
	}

	SweepDuration, err = Meter.Float64Histogram("reaper.sweep.duration.seconds",
		metric.WithDescription("Duration of sweep runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep_duration histogram: %w", err)
	}

	return nil
}

// RecordTermination counts one termination decision.
func RecordTermination(ctx context.Context, reason string, live bool) {
	if Terminations == nil {
		return
	}
	Terminations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.Bool("live_mode", live),
		))
}

// RecordAnomaly counts one unreadable-expiry anomaly.
func RecordAnomaly(ctx context.Context, reason string) {
	if Anomalies == nil {
		return
	}
	Anomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEnforcementOutcome counts one finished watcher invocation.
func RecordEnforcementOutcome(ctx context.Context, state string) {
	if EnforcementOutcomes == nil {
		return
	}
	EnforcementOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordSweep records the size and duration of one sweep run.
func RecordSweep(ctx context.Context, scanned int, seconds float64) {
	if InstancesScanned != nil {
		InstancesScanned.Add(ctx, int64(scanned))
	}
	if SweepDuration != nil {
		SweepDuration.Record(ctx, seconds)
	}
}
