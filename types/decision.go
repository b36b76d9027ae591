package types

import (
	"fmt"
	"time"
)

// Actions the reaper can decide on for a single instance.
const (
	ActionTerminate = "terminate" // instance violates policy, remove it
	ActionTag       = "tag"       // write a computed termination_date
	ActionNone      = "none"      // compliant, leave it alone
)

// Decision is the outcome of evaluating one instance against the
// lifecycle policy. Decisions are deterministic in the instance's tags
// and the evaluation time, so duplicate invocations converge.
type Decision struct {
	Action     string    `json:"action"`
	InstanceID string    `json:"instance_id"`
	Reason     Reason    `json:"reason,omitempty"`
	Expiry     time.Time `json:"expiry,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Validate ensures the decision has required fields.
func (d *Decision) Validate() error {
	switch d.Action {
	case ActionTerminate, ActionTag, ActionNone:
	default:
		return fmt.Errorf("unknown decision action %q", d.Action)
	}
	if d.InstanceID == "" {
		return fmt.Errorf("decision instance ID cannot be empty")
	}
	if d.Action == ActionTerminate && !d.Reason.Valid() {
		return fmt.Errorf("terminate decision requires a reason code")
	}
	if d.Action == ActionTag && d.Expiry.IsZero() {
		return fmt.Errorf("tag decision requires an expiry")
	}
	return nil
}

// IsDestructive checks if the action removes the instance.
func (d *Decision) IsDestructive() bool {
	return d.Action == ActionTerminate
}

// Event builds the termination event for a terminate decision.
func (d *Decision) Event(dryRun bool) Event {
	return Event{
		InstanceID: d.InstanceID,
		Reason:     d.Reason,
		At:         d.DecidedAt,
		DryRun:     dryRun,
	}
}
