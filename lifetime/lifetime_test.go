package lifetime

import (
	"testing"
	"time"

	"github.com/yairfalse/reaper/types"
)

func TestParseLifetime(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "one week", value: "1w", want: 168 * time.Hour},
		{name: "two days", value: "2d", want: 48 * time.Hour},
		{name: "three hours", value: "3h", want: 3 * time.Hour},
		{name: "large value", value: "52w", want: 52 * 168 * time.Hour},
		{name: "zero is not positive", value: "0d", wantErr: true},
		{name: "leading zero", value: "01d", wantErr: true},
		{name: "unknown unit", value: "1x", wantErr: true},
		{name: "minutes not in grammar", value: "5m", wantErr: true},
		{name: "unit before integer", value: "w1", wantErr: true},
		{name: "negative", value: "-1h", wantErr: true},
		{name: "empty", value: "", wantErr: true},
		{name: "trailing garbage", value: "1d ", wantErr: true},
		{name: "missing unit", value: "7", wantErr: true},
		{name: "missing integer", value: "d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLifetime(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLifetime(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseLifetime(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "zulu offset", value: "2025-06-01T12:00:00Z"},
		{name: "positive offset", value: "2025-06-01T12:00:00+02:00"},
		{name: "negative offset", value: "2025-06-01T12:00:00-08:00"},
		{name: "fractional seconds", value: "2025-06-01T12:00:00.123456Z"},
		{name: "offset without colon", value: "2025-06-01T12:00:00+0000"},
		{name: "offset-naive rejected", value: "2025-06-01T12:00:00", wantErr: true},
		{name: "date only rejected", value: "2025-06-01", wantErr: true},
		{name: "garbage", value: "next tuesday", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpiry(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseExpiry(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestParseExpiry_PreservesOffset(t *testing.T) {
	got, err := ParseExpiry("2025-06-01T12:00:00+02:00")
	if err != nil {
		t.Fatalf("ParseExpiry() error = %v", err)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed instant = %v, want %v", got, want)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tags       map[string]string
		wantKind   Kind
		wantExpiry time.Time
		wantReason types.Reason
	}{
		{
			name:       "termination_date returned verbatim",
			tags:       map[string]string{types.TagTerminationDate: "2025-07-01T00:00:00Z"},
			wantKind:   KindResolved,
			wantExpiry: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "termination_date wins over lifetime",
			tags: map[string]string{
				types.TagTerminationDate: "2025-07-01T00:00:00Z",
				types.TagLifetime:        "1h",
			},
			wantKind:   KindResolved,
			wantExpiry: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "expired termination_date still wins over lifetime",
			tags: map[string]string{
				types.TagTerminationDate: "2020-01-01T00:00:00Z",
				types.TagLifetime:        "52w",
			},
			wantKind:   KindResolved,
			wantExpiry: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "lifetime computes from now",
			tags:       map[string]string{types.TagLifetime: "1w"},
			wantKind:   KindComputed,
			wantExpiry: now.Add(168 * time.Hour),
		},
		{
			name:       "two day lifetime",
			tags:       map[string]string{types.TagLifetime: "2d"},
			wantKind:   KindComputed,
			wantExpiry: now.Add(48 * time.Hour),
		},
		{
			name:       "malformed termination_date",
			tags:       map[string]string{types.TagTerminationDate: "tomorrow"},
			wantKind:   KindInvalid,
			wantReason: types.ReasonInvalidExpiry,
		},
		{
			name:       "offset-naive termination_date",
			tags:       map[string]string{types.TagTerminationDate: "2025-07-01T00:00:00"},
			wantKind:   KindInvalid,
			wantReason: types.ReasonInvalidExpiry,
		},
		{
			name: "malformed termination_date is not rescued by lifetime",
			tags: map[string]string{
				types.TagTerminationDate: "garbage",
				types.TagLifetime:        "1d",
			},
			wantKind:   KindInvalid,
			wantReason: types.ReasonInvalidExpiry,
		},
		{
			name:       "malformed lifetime",
			tags:       map[string]string{types.TagLifetime: "0d"},
			wantKind:   KindInvalid,
			wantReason: types.ReasonInvalidLifetime,
		},
		{
			name:       "no tags at all",
			tags:       map[string]string{},
			wantKind:   KindInvalid,
			wantReason: types.ReasonMissingTag,
		},
		{
			name:       "nil tags",
			tags:       nil,
			wantKind:   KindInvalid,
			wantReason: types.ReasonMissingTag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.tags, now)
			if got.Kind != tt.wantKind {
				t.Fatalf("Resolve() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantKind == KindInvalid {
				if got.Reason != tt.wantReason {
					t.Errorf("Resolve() reason = %q, want %q", got.Reason, tt.wantReason)
				}
				return
			}
			if !got.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("Resolve() expiry = %v, want %v", got.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestResolve_VerbatimRaw(t *testing.T) {
	raw := "2025-07-01T00:00:00+02:00"
	res := Resolve(map[string]string{types.TagTerminationDate: raw}, time.Now())
	if res.Kind != KindResolved {
		t.Fatalf("kind = %v, want resolved", res.Kind)
	}
	if res.Raw != raw {
		t.Errorf("Raw = %q, want the tag value unmodified %q", res.Raw, raw)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tags := map[string]string{types.TagTerminationDate: "2025-07-01T00:00:00Z"}

	first := Resolve(tags, now)
	second := Resolve(tags, now)

	if first.Kind != second.Kind || !first.Expiry.Equal(second.Expiry) || first.Raw != second.Raw {
		t.Errorf("resolve not idempotent: %+v vs %+v", first, second)
	}
}
