// Package notifier forwards termination events to a human channel. It
// is fully decoupled from the decision engine: its only input is the
// marker line the engine logs, picked up through a CloudWatch Logs
// filter, exactly like the log-subscription the engine knows nothing
// about.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/yairfalse/reaper/config"
	"github.com/yairfalse/reaper/telemetry"
	"github.com/yairfalse/reaper/types"
)

// LogsAPI is the slice of the CloudWatch Logs client the notifier uses.
type LogsAPI interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// Forwarder delivers one parsed event to the human channel.
type Forwarder interface {
	Forward(ctx context.Context, event types.Event) error
}

// Notifier tails a log group for termination markers and forwards them.
type Notifier struct {
	logs      LogsAPI
	forwarder Forwarder
	logger    *telemetry.Logger
	cfg       config.NotifierConfig

	// lastSeen is the newest event timestamp already forwarded, in
	// epoch milliseconds. Events at or before it are skipped, so an
	// overlapping poll window never double-notifies.
	lastSeen int64

	now func() time.Time
}

// New creates a notifier.
func New(logs LogsAPI, forwarder Forwarder, logger *telemetry.Logger, cfg config.NotifierConfig) *Notifier {
	return &Notifier{
		logs:      logs,
		forwarder: forwarder,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Poll fetches and forwards any new termination events. Returns how
// many events were forwarded. Delivery is best-effort: a forward
// failure is logged and the event is skipped, matching the engine's
// fire-and-forget contract.
func (n *Notifier) Poll(ctx context.Context) (int, error) {
	start := n.lastSeen + 1
	if n.lastSeen == 0 {
		start = n.now().Add(-n.cfg.Lookback).UnixMilli()
	}

	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:  aws.String(n.cfg.LogGroup),
		FilterPattern: aws.String(fmt.Sprintf("%q", types.TerminationMarker)),
		StartTime:     aws.Int64(start),
	}

	forwarded := 0
	for {
		output, err := n.logs.FilterLogEvents(ctx, input)
		if err != nil {
			return forwarded, fmt.Errorf("failed to filter log events: %w", err)
		}

		for _, logEvent := range output.Events {
			if ts := aws.ToInt64(logEvent.Timestamp); ts > n.lastSeen {
				n.lastSeen = ts
			}

			event, err := types.ParseEvent(aws.ToString(logEvent.Message))
			if err != nil {
				n.logger.WithContext(ctx).Warn().
					Err(err).
					Str("message", aws.ToString(logEvent.Message)).
					Msg("unparsable marker line, skipping")
				continue
			}

			if err := n.forwarder.Forward(ctx, event); err != nil {
				n.logger.WithContext(ctx).Error().
					Err(err).
					Str("instance_id", event.InstanceID).
					Msg("notification delivery failed")
				continue
			}
			forwarded++
		}

		if output.NextToken == nil {
			return forwarded, nil
		}
		input.NextToken = output.NextToken
	}
}

// Run polls until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	interval := n.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if count, err := n.Poll(ctx); err != nil {
			n.logger.WithContext(ctx).Error().Err(err).Msg("notifier poll failed")
		} else if count > 0 {
			n.logger.WithContext(ctx).Info().Int("forwarded", count).Msg("notifications sent")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
