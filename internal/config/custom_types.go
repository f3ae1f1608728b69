// Package config handles application configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeOfDay is a wall-clock time within a trading day, unmarshalled from a
// "HH:MM" string. The zero value means "not set".
type TimeOfDay struct {
	Hour   int
	Minute int
	set    bool
}

// NewTimeOfDay builds a set TimeOfDay.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, set: true}
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for TimeOfDay.
func (t *TimeOfDay) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag != "!!str" {
		return fmt.Errorf("cannot unmarshal %s into TimeOfDay, expected \"HH:MM\"", value.Tag)
	}
	parts := strings.SplitN(value.Value, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid time of day %q, expected \"HH:MM\"", value.Value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in time of day %q", value.Value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in time of day %q", value.Value)
	}
	*t = TimeOfDay{Hour: hour, Minute: minute, set: true}
	return nil
}

// IsZero reports whether the value was never set.
func (t TimeOfDay) IsZero() bool { return !t.set }

// Minutes returns the time of day as minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Reached reports whether now (interpreted in loc) is at or past the cutoff.
// An unset cutoff is never reached.
func (t TimeOfDay) Reached(now time.Time, loc *time.Location) bool {
	if !t.set {
		return false
	}
	local := now.In(loc)
	return local.Hour()*60+local.Minute() >= t.Minutes()
}

// String renders the time of day as "HH:MM".
func (t TimeOfDay) String() string {
	if !t.set {
		return "unset"
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
