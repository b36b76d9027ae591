// Package sweeper implements the periodic pass over the running fleet:
// any instance whose termination_date has passed, or can't be read at
// all, is terminated. There is no lifetime fallback here; by sweep time
// the expiry must already be set.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/reaper/ledger"
	"github.com/yairfalse/reaper/lifetime"
	"github.com/yairfalse/reaper/providers"
	"github.com/yairfalse/reaper/telemetry"
	"github.com/yairfalse/reaper/types"
	"github.com/yairfalse/reaper/wal"
)

// Options configure a sweeper.
type Options struct {
	LiveMode bool
}

// Result accounts for one sweep run. Decisions are independent per
// instance; a failure on one never blocks the rest.
type Result struct {
	StartedAt  time.Time
	Duration   time.Duration
	Scanned    int
	Terminated []string
	Anomalous  []string // missing or unreadable termination_date
	Skipped    []string // valid expiry in the future
	Failed     []string // terminate call failed, retried next run
}

// Sweeper scans all tracked instances and terminates expired ones.
type Sweeper struct {
	inventory providers.InstanceAPI
	logger    *telemetry.Logger
	audit     *wal.WAL
	book      *ledger.Ledger
	opts      Options

	now func() time.Time
}

// New creates a sweeper. The audit WAL and ledger may be nil.
func New(inventory providers.InstanceAPI, logger *telemetry.Logger, audit *wal.WAL, book *ledger.Ledger, opts Options) *Sweeper {
	return &Sweeper{
		inventory: inventory,
		logger:    logger,
		audit:     audit,
		book:      book,
		opts:      opts,
		now:       time.Now,
	}
}

// Sweep evaluates every running instance once. It returns an error only
// when the fleet cannot be enumerated; per-instance failures are
// recorded in the result and left for the next scheduled run.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: s.now()}

	instances, err := s.inventory.ListRunning(ctx)
	if err != nil {
		s.appendAuditErr("", err)
		return nil, fmt.Errorf("sweep aborted, cannot list instances: %w", err)
	}

	rev := s.beginLedgerSweep()

	for _, instance := range instances {
		result.Scanned++
		s.sweepOne(ctx, rev, instance, result)
	}

	result.Duration = s.now().Sub(result.StartedAt)
	s.finishLedgerSweep(rev, result)
	telemetry.RecordSweep(ctx, result.Scanned, result.Duration.Seconds())
	s.logger.LogSweepSummary(ctx, s.opts.LiveMode,
		len(result.Terminated), len(result.Anomalous), len(result.Skipped), len(result.Failed))

	return result, nil
}

// sweepOne applies the policy to a single instance.
func (s *Sweeper) sweepOne(ctx context.Context, rev int64, instance types.Instance, result *Result) {
	now := s.now()
	decision := s.decide(instance, now)

	if decision.Action == types.ActionNone {
		result.Skipped = append(result.Skipped, instance.ID)
		s.recordLedger(rev, decision, decision.Expiry)
		s.logger.WithContext(ctx).Debug().
			Str("instance_id", instance.ID).
			Dur("ttl", decision.Expiry.Sub(now)).
			Msg("instance within its lifetime")
		return
	}

	// Anomalies are reportable, never silently terminated.
	if decision.Reason != types.ReasonExpired {
		result.Anomalous = append(result.Anomalous, instance.ID)
		s.appendAudit(wal.EntryAnomaly, instance.ID, decision)
		telemetry.RecordAnomaly(ctx, string(decision.Reason))
		s.logger.WithContext(ctx).Warn().
			Str("instance_id", instance.ID).
			Str("reason", string(decision.Reason)).
			Str("termination_date", instance.Tag(types.TagTerminationDate)).
			Msg("unreadable termination_date at sweep time")
	}

	// Event and audit entry precede the destructive call.
	s.appendAudit(wal.EntryTermination, instance.ID, decision)
	s.logger.LogTermination(ctx, decision.Event(!s.opts.LiveMode))
	telemetry.RecordTermination(ctx, string(decision.Reason), s.opts.LiveMode)
	s.recordLedger(rev, decision, decision.Expiry)

	if s.opts.LiveMode {
		if err := s.inventory.TerminateInstances(ctx, []string{instance.ID}); err != nil {
			result.Failed = append(result.Failed, instance.ID)
			s.appendAuditErr(instance.ID, err)
			s.logger.WithContext(ctx).Error().
				Err(err).
				Str("instance_id", instance.ID).
				Msg("terminate call failed, will retry next sweep")
			return
		}
	}
	result.Terminated = append(result.Terminated, instance.ID)
}

// decide classifies one instance. Pure in the instance and the clock.
func (s *Sweeper) decide(instance types.Instance, now time.Time) types.Decision {
	decision := types.Decision{
		InstanceID: instance.ID,
		DecidedAt:  now,
	}

	raw, ok := instance.Tags[types.TagTerminationDate]
	if !ok {
		decision.Action = types.ActionTerminate
		decision.Reason = types.ReasonMissingTag
		return decision
	}

	expiry, err := lifetime.ParseExpiry(raw)
	if err != nil {
		decision.Action = types.ActionTerminate
		decision.Reason = types.ReasonInvalidExpiry
		return decision
	}

	decision.Expiry = expiry
	if !now.Before(expiry) {
		decision.Action = types.ActionTerminate
		decision.Reason = types.ReasonExpired
		return decision
	}

	decision.Action = types.ActionNone
	return decision
}

func (s *Sweeper) beginLedgerSweep() int64 {
	if s.book == nil {
		return 0
	}
	rev, err := s.book.BeginSweep()
	if err != nil {
		s.logger.Error().Err(err).Msg("ledger revision bump failed")
		return 0
	}
	return rev
}

func (s *Sweeper) finishLedgerSweep(rev int64, result *Result) {
	if s.book == nil || rev == 0 {
		return
	}
	err := s.book.RecordSweep(ledger.SweepSummary{
		Rev:        rev,
		StartedAt:  result.StartedAt,
		Duration:   result.Duration.Seconds(),
		Scanned:    result.Scanned,
		Terminated: len(result.Terminated),
		Anomalous:  len(result.Anomalous),
		Failed:     len(result.Failed),
		LiveMode:   s.opts.LiveMode,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("ledger sweep summary write failed")
	}
}

func (s *Sweeper) recordLedger(rev int64, decision types.Decision, expiry time.Time) {
	if s.book == nil || rev == 0 {
		return
	}
	if err := s.book.RecordDecision(rev, decision, expiry, !s.opts.LiveMode); err != nil {
		s.logger.Error().Err(err).Str("instance_id", decision.InstanceID).Msg("ledger write failed")
	}
}

func (s *Sweeper) appendAudit(entryType wal.EntryType, instanceID string, data any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(entryType, instanceID, data); err != nil {
		s.logger.Error().Err(err).Str("instance_id", instanceID).Msg("audit append failed")
	}
}

func (s *Sweeper) appendAuditErr(instanceID string, cause error) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendError(instanceID, nil, cause); err != nil {
		s.logger.Error().Err(err).Str("instance_id", instanceID).Msg("audit append failed")
	}
}
