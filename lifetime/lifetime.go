// Package lifetime resolves an instance's tag set into an authoritative
// expiry timestamp. It is pure: no clock reads, no I/O.
package lifetime

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/yairfalse/reaper/types"
)

// Kind classifies a resolution outcome.
type Kind int

const (
	// KindResolved means a valid termination_date tag was found and
	// returned verbatim.
	KindResolved Kind = iota
	// KindComputed means no termination_date was present and the expiry
	// was computed from a valid lifetime tag.
	KindComputed
	// KindInvalid means neither tag yielded a usable expiry.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindResolved:
		return "resolved"
	case KindComputed:
		return "computed"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one instance's tags.
type Resolution struct {
	Kind   Kind
	Expiry time.Time    // set for KindResolved and KindComputed
	Raw    string       // the verbatim termination_date value, KindResolved only
	Reason types.Reason // set for KindInvalid
}

// lifetimePattern is the full grammar: positive base-10 integer with no
// leading zero, then exactly one of w/d/h.
var lifetimePattern = regexp.MustCompile(`^([1-9][0-9]*)([wdh])$`)

// unitHours maps a lifetime unit letter to its length in hours.
var unitHours = map[string]time.Duration{
	"w": 7 * 24 * time.Hour,
	"d": 24 * time.Hour,
	"h": time.Hour,
}

// expiryLayouts are the accepted termination_date forms. Every layout
// carries an explicit numeric offset or Z; an offset-naive timestamp
// matches none of them, which is how the "no implicit UTC" rule is
// enforced.
var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
}

// Resolve determines the authoritative expiry for an instance given its
// current tags. termination_date always wins over lifetime: operators
// extend an instance's life by editing termination_date directly, and
// the resolver must never recompute over that value from a stale
// lifetime tag. lifetime is consulted only when termination_date is
// absent entirely.
func Resolve(tags map[string]string, now time.Time) Resolution {
	if raw, ok := tags[types.TagTerminationDate]; ok {
		expiry, err := ParseExpiry(raw)
		if err != nil {
			return Resolution{Kind: KindInvalid, Reason: types.ReasonInvalidExpiry}
		}
		return Resolution{Kind: KindResolved, Expiry: expiry, Raw: raw}
	}

	if raw, ok := tags[types.TagLifetime]; ok {
		d, err := ParseLifetime(raw)
		if err != nil {
			return Resolution{Kind: KindInvalid, Reason: types.ReasonInvalidLifetime}
		}
		return Resolution{Kind: KindComputed, Expiry: now.Add(d)}
	}

	return Resolution{Kind: KindInvalid, Reason: types.ReasonMissingTag}
}

// ParseLifetime parses a lifetime tag value of the form <int><w|d|h>.
func ParseLifetime(s string) (time.Duration, error) {
	m := lifetimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("lifetime %q does not match <positive-int><w|d|h>", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Only reachable on overflow; the pattern already guarantees digits.
		return 0, fmt.Errorf("lifetime %q: %w", s, err)
	}
	return time.Duration(n) * unitHours[m[2]], nil
}

// ParseExpiry parses a termination_date tag value. The timestamp must be
// ISO-8601 with an explicit UTC offset; offset-naive values are rejected
// rather than assumed UTC, because a naively-compared timestamp could
// silently shift an instance's expiry by hours.
func ParseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("termination_date %q is not an offset-aware ISO-8601 timestamp", s)
}
