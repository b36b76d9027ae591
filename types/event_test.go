package types

import (
	"strings"
	"testing"
	"time"
)

func TestEvent_Format(t *testing.T) {
	event := Event{
		InstanceID: "i-0abc123",
		Reason:     ReasonExpired,
		At:         time.Now(),
		DryRun:     true,
	}

	line := event.Format()

	if !strings.Contains(line, TerminationMarker) {
		t.Errorf("formatted line %q missing marker %q", line, TerminationMarker)
	}
	if !strings.Contains(line, "instance_id=i-0abc123") {
		t.Errorf("formatted line %q missing instance id", line)
	}
	if !strings.Contains(line, "reason=expired") {
		t.Errorf("formatted line %q missing reason", line)
	}
	if !strings.Contains(line, "dry_run=true") {
		t.Errorf("formatted line %q missing dry-run flag", line)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Event
		wantErr bool
	}{
		{
			name: "plain marker line",
			line: "REAPER TERMINATION instance_id=i-0abc123 reason=expired dry_run=false",
			want: Event{InstanceID: "i-0abc123", Reason: ReasonExpired},
		},
		{
			name: "marker line with log decoration",
			line: `{"level":"warn","message":"REAPER TERMINATION instance_id=i-9 reason=missing_tag dry_run=true"}`,
			want: Event{InstanceID: "i-9", Reason: ReasonMissingTag, DryRun: true},
		},
		{
			name:    "no marker",
			line:    "instance_id=i-0abc123 reason=expired",
			wantErr: true,
		},
		{
			name:    "marker without instance id",
			line:    "REAPER TERMINATION reason=expired dry_run=false",
			wantErr: true,
		},
		{
			name:    "unknown reason",
			line:    "REAPER TERMINATION instance_id=i-1 reason=vibes dry_run=false",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.InstanceID != tt.want.InstanceID {
				t.Errorf("InstanceID = %q, want %q", got.InstanceID, tt.want.InstanceID)
			}
			if got.Reason != tt.want.Reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.want.Reason)
			}
			if got.DryRun != tt.want.DryRun {
				t.Errorf("DryRun = %v, want %v", got.DryRun, tt.want.DryRun)
			}
		})
	}
}

func TestParseEvent_RoundTrip(t *testing.T) {
	event := Event{
		InstanceID: "i-0deadbeef",
		Reason:     ReasonEnforcementTimeout,
		At:         time.Now(),
		DryRun:     false,
	}

	parsed, err := ParseEvent(event.Format())
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if parsed.InstanceID != event.InstanceID || parsed.Reason != event.Reason || parsed.DryRun != event.DryRun {
		t.Errorf("round trip mismatch: got %+v, want %+v", parsed, event)
	}
}

func TestInstance_Tag(t *testing.T) {
	inst := Instance{
		ID:   "i-1",
		Tags: map[string]string{TagLifetime: "3d"},
	}

	if got := inst.Tag(TagLifetime); got != "3d" {
		t.Errorf("Tag(lifetime) = %q, want 3d", got)
	}
	if got := inst.Tag(TagTerminationDate); got != "" {
		t.Errorf("Tag(termination_date) = %q, want empty", got)
	}

	var nilTags Instance
	if nilTags.HasTag(TagLifetime) {
		t.Error("instance with nil tags should have no tags")
	}
}

func TestInstance_Age(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	launched := Instance{ID: "i-1", LaunchedAt: now.Add(-90 * time.Second)}
	if got := launched.Age(now); got != 90*time.Second {
		t.Errorf("Age() = %v, want 90s", got)
	}

	unknown := Instance{ID: "i-2"}
	if got := unknown.Age(now); got != 0 {
		t.Errorf("Age() with zero launch time = %v, want 0", got)
	}
}
