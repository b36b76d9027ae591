package types

import "time"

// Tag keys that make up the lifecycle contract on every instance.
const (
	TagLifetime        = "lifetime"
	TagTerminationDate = "termination_date"
)

// Instance represents an EC2 instance as seen by the reaper.
// It is a read-only snapshot; tags are re-fetched when freshness matters.
type Instance struct {
	ID         string            `json:"id"`
	State      string            `json:"state"`
	Tags       map[string]string `json:"tags"`
	LaunchedAt time.Time         `json:"launched_at"`
}

// Tag returns the value of a tag, or "" if the instance doesn't carry it.
func (i *Instance) Tag(key string) string {
	if i.Tags == nil {
		return ""
	}
	return i.Tags[key]
}

// HasTag reports whether the tag is present, even with an empty value.
func (i *Instance) HasTag(key string) bool {
	if i.Tags == nil {
		return false
	}
	_, ok := i.Tags[key]
	return ok
}

// Age returns how long the instance has existed relative to now.
// Returns 0 if the launch time is unknown.
func (i *Instance) Age(now time.Time) time.Duration {
	if i.LaunchedAt.IsZero() {
		return 0
	}
	return now.Sub(i.LaunchedAt)
}
