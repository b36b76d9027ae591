// Package enforcer runs the one-time lifecycle check on a newly created
// instance: poll its tags until an expiry can be resolved, write the
// computed termination_date, or terminate once the wait budget runs out.
package enforcer

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/reaper/lifetime"
	"github.com/yairfalse/reaper/providers"
	"github.com/yairfalse/reaper/telemetry"
	"github.com/yairfalse/reaper/types"
	"github.com/yairfalse/reaper/wal"
)

// State of one enforcement invocation.
type State string

const (
	StateWaiting  State = "waiting"
	StateResolved State = "resolved"
	StateTimedOut State = "timed_out"
	StateError    State = "error"
)

// Options configure the watcher.
type Options struct {
	// WaitBudget bounds how long after instance creation a valid expiry
	// may still appear. The deadline is anchored to the instance launch
	// time, so a platform re-invoking the watcher cannot restart the
	// clock.
	WaitBudget   time.Duration
	PollInterval time.Duration
	LiveMode     bool
}

// DefaultOptions mirror the platform's 5-minute invocation limit: wait
// up to 4 minutes, poll every 15 seconds.
func DefaultOptions(live bool) Options {
	return Options{
		WaitBudget:   4 * time.Minute,
		PollInterval: 15 * time.Second,
		LiveMode:     live,
	}
}

// Result describes how an enforcement invocation ended.
type Result struct {
	State      State
	InstanceID string
	Expiry     time.Time    // set when State is StateResolved
	Reason     types.Reason // set when State is StateTimedOut
	Polls      int
}

// Watcher enforces the tag contract on single instances. One invocation
// handles one instance; concurrent invocations for the same instance
// converge because every decision is a function of the instance's tags
// and age, not of watcher-local state.
type Watcher struct {
	inventory providers.InstanceAPI
	logger    *telemetry.Logger
	audit     *wal.WAL
	opts      Options

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a watcher. The audit WAL may be nil.
func New(inventory providers.InstanceAPI, logger *telemetry.Logger, audit *wal.WAL, opts Options) *Watcher {
	return &Watcher{
		inventory: inventory,
		logger:    logger,
		audit:     audit,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Enforce runs the watcher for one instance. It returns a non-nil error
// only for transport failures (StateError); validation failures are
// policy outcomes, not errors.
func (w *Watcher) Enforce(ctx context.Context, instanceID string) (*Result, error) {
	result := &Result{State: StateWaiting, InstanceID: instanceID}
	start := w.now()

	instance, err := w.inventory.GetInstance(ctx, instanceID)
	if err != nil {
		return w.failTransport(ctx, result, err)
	}

	// Anchor the deadline to instance age, not watcher start, unless
	// the launch time is unavailable.
	deadline := start.Add(w.opts.WaitBudget)
	if !instance.LaunchedAt.IsZero() {
		deadline = instance.LaunchedAt.Add(w.opts.WaitBudget)
	}

	lastReason := types.ReasonMissingTag
	for {
		result.Polls++
		w.logObservation(ctx, instance)

		resolution := lifetime.Resolve(instance.Tags, w.now())
		switch resolution.Kind {
		case lifetime.KindResolved:
			return w.resolved(ctx, result, resolution.Expiry, false)

		case lifetime.KindComputed:
			if err := w.writeExpiry(ctx, instanceID, resolution.Expiry); err != nil {
				return w.failTransport(ctx, result, err)
			}
			return w.resolved(ctx, result, resolution.Expiry, true)

		case lifetime.KindInvalid:
			lastReason = resolution.Reason
		}

		if !w.now().Before(deadline) {
			return w.timedOut(ctx, result, lastReason)
		}

		if err := w.sleep(ctx, w.opts.PollInterval); err != nil {
			return w.failTransport(ctx, result, err)
		}

		instance, err = w.inventory.GetInstance(ctx, instanceID)
		if err != nil {
			return w.failTransport(ctx, result, err)
		}
	}
}

// writeExpiry tags the instance with the computed termination_date.
// The write is one atomic call; re-running the watcher overwrites with
// a fresh computation, which is fine because the sweep only ever reads
// the tag that ends up set.
func (w *Watcher) writeExpiry(ctx context.Context, instanceID string, expiry time.Time) error {
	value := expiry.UTC().Format(time.RFC3339)

	if !w.opts.LiveMode {
		w.logger.WithContext(ctx).Info().
			Str("instance_id", instanceID).
			Str("termination_date", value).
			Msg("dry-run: would write termination_date")
		return nil
	}

	if err := w.inventory.CreateTags(ctx, instanceID, map[string]string{
		types.TagTerminationDate: value,
	}); err != nil {
		return err
	}

	w.appendAudit(wal.EntryTagged, instanceID, map[string]string{types.TagTerminationDate: value})
	w.logger.WithContext(ctx).Info().
		Str("instance_id", instanceID).
		Str("termination_date", value).
		Msg("termination_date written")
	return nil
}

func (w *Watcher) resolved(ctx context.Context, result *Result, expiry time.Time, computed bool) (*Result, error) {
	result.State = StateResolved
	result.Expiry = expiry

	w.appendAudit(wal.EntryResolved, result.InstanceID, map[string]any{
		"expiry":   expiry,
		"computed": computed,
	})
	telemetry.RecordEnforcementOutcome(ctx, string(StateResolved))
	w.logger.LogEnforcementOutcome(ctx, result.InstanceID, string(StateResolved), nil)
	return result, nil
}

// timedOut handles the budget expiring without a valid resolution: the
// termination event is emitted before the destructive call so dry-run
// and live logs stay comparable.
func (w *Watcher) timedOut(ctx context.Context, result *Result, reason types.Reason) (*Result, error) {
	result.State = StateTimedOut
	result.Reason = reason

	decision := types.Decision{
		Action:     types.ActionTerminate,
		InstanceID: result.InstanceID,
		Reason:     reason,
		DecidedAt:  w.now(),
	}

	w.appendAudit(wal.EntryTermination, result.InstanceID, decision)
	w.logger.LogTermination(ctx, decision.Event(!w.opts.LiveMode))
	telemetry.RecordTermination(ctx, string(reason), w.opts.LiveMode)
	telemetry.RecordEnforcementOutcome(ctx, string(StateTimedOut))

	w.logger.WithContext(ctx).Warn().
		Str("instance_id", result.InstanceID).
		Str("reason", string(reason)).
		Str("outcome", string(types.ReasonEnforcementTimeout)).
		Dur("wait_budget", w.opts.WaitBudget).
		Msg("no valid expiry within wait budget")

	if !w.opts.LiveMode {
		return result, nil
	}
	if err := w.inventory.TerminateInstances(ctx, []string{result.InstanceID}); err != nil {
		return w.failTransport(ctx, result, err)
	}
	return result, nil
}

// failTransport converts an inventory failure into StateError. The
// instance is never terminated on this path: not being able to check
// compliance is not the same as non-compliance.
func (w *Watcher) failTransport(ctx context.Context, result *Result, err error) (*Result, error) {
	result.State = StateError

	w.appendAuditErr(result.InstanceID, err)
	telemetry.RecordEnforcementOutcome(ctx, string(StateError))
	w.logger.LogEnforcementOutcome(ctx, result.InstanceID, string(StateError), err)
	return result, fmt.Errorf("enforcement aborted for %s: %w", result.InstanceID, err)
}

func (w *Watcher) logObservation(ctx context.Context, instance *types.Instance) {
	w.appendAudit(wal.EntryObserved, instance.ID, instance.Tags)
	w.logger.WithContext(ctx).Debug().
		Str("instance_id", instance.ID).
		Int("tag_count", len(instance.Tags)).
		Msg("observed instance tags")
}

func (w *Watcher) appendAudit(entryType wal.EntryType, instanceID string, data any) {
	if w.audit == nil {
		return
	}
	if err := w.audit.Append(entryType, instanceID, data); err != nil {
		w.logger.Error().Err(err).Str("instance_id", instanceID).Msg("audit append failed")
	}
}

func (w *Watcher) appendAuditErr(instanceID string, cause error) {
	if w.audit == nil {
		return
	}
	if err := w.audit.AppendError(instanceID, nil, cause); err != nil {
		w.logger.Error().Err(err).Str("instance_id", instanceID).Msg("audit append failed")
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
