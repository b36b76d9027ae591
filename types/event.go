package types

import (
	"fmt"
	"strings"
	"time"
)

// TerminationMarker is the literal substring the notifier's log filter
// matches on. It is an integration contract: changing it breaks every
// subscription downstream.
const TerminationMarker = "REAPER TERMINATION"

// Reason identifies why an instance was (or would be) terminated.
type Reason string

const (
	ReasonMissingTag         Reason = "missing_tag"
	ReasonInvalidLifetime    Reason = "invalid_lifetime"
	ReasonInvalidExpiry      Reason = "invalid_expiry"
	ReasonEnforcementTimeout Reason = "enforcement_timeout"
	ReasonExpired            Reason = "expired"
)

// Valid reports whether r is one of the known reason codes.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMissingTag, ReasonInvalidLifetime, ReasonInvalidExpiry,
		ReasonEnforcementTimeout, ReasonExpired:
		return true
	}
	return false
}

// Event is a termination event handed to the notification channel.
// The engine emits it as a single log line and never persists it.
type Event struct {
	InstanceID string    `json:"instance_id"`
	Reason     Reason    `json:"reason"`
	At         time.Time `json:"at"`
	DryRun     bool      `json:"dry_run"`
}

// Format renders the marker line. This is the only place the line is
// assembled; both entry points and the notifier parser go through it.
func (e Event) Format() string {
	return fmt.Sprintf("%s instance_id=%s reason=%s dry_run=%t",
		TerminationMarker, e.InstanceID, e.Reason, e.DryRun)
}

// ParseEvent recovers an Event from a marker line produced by Format.
// The line may carry log decoration before the marker; anything after
// the known fields is ignored.
func ParseEvent(line string) (Event, error) {
	idx := strings.Index(line, TerminationMarker)
	if idx < 0 {
		return Event{}, fmt.Errorf("no termination marker in line")
	}

	var event Event
	for _, field := range strings.Fields(line[idx+len(TerminationMarker):]) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "instance_id":
			event.InstanceID = value
		case "reason":
			event.Reason = Reason(value)
		case "dry_run":
			event.DryRun = value == "true"
		}
	}

	if event.InstanceID == "" {
		return Event{}, fmt.Errorf("marker line missing instance_id")
	}
	if !event.Reason.Valid() {
		return Event{}, fmt.Errorf("marker line has unknown reason %q", event.Reason)
	}
	return event, nil
}
